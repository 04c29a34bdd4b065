package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/internal/structured"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	codeRecallLimit   = 5
	maxKnowledgeChars = 2000
)

type codeResponse struct {
	Files []struct {
		Path        string `json:"path"`
		Content     string `json:"content"`
		Description string `json:"description"`
	} `json:"files"`
	Explanation string   `json:"explanation"`
	NextSteps   []string `json:"nextSteps"`
}

// CodeHandler generates source files with the completer and writes them.
type CodeHandler struct {
	deps Deps
}

func (h *CodeHandler) Type() models.SubtaskType { return models.SubtaskTypeCode }

func (h *CodeHandler) Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error) {
	knowledge := strings.Join(recall(ctx, h.deps, st.Description, codeRecallLimit), "\n")

	prompt := fmt.Sprintf(codePrompt,
		st.Title,
		st.Description,
		contextJSON(taskCtx),
		truncate(knowledge, maxKnowledgeChars),
		bulleted(st.Deliverables),
		bulleted(st.VerificationCriteria))

	text, err := h.deps.LLM.Complete(ctx, prompt, completionOptions)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	resp, ok := structured.Parse[codeResponse](text)
	if !ok || len(resp.Files) == 0 {
		return nil, ErrNoFiles
	}

	files := make([]models.GeneratedFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		if strings.TrimSpace(f.Path) == "" {
			return nil, errors.New("generated file without a path")
		}
		full, err := h.deps.Files.WriteFile(f.Path, f.Content)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Path, err)
		}
		h.deps.Logger.Info("file written", zap.String("path", f.Path))
		files = append(files, models.GeneratedFile{
			Path:        f.Path,
			FullPath:    full,
			Description: f.Description,
			Content:     f.Content,
		})
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	remember(ctx, h.deps, memory.TypeCodeGeneration, map[string]any{
		"subtask":     st.Title,
		"files":       paths,
		"explanation": resp.Explanation,
	}, st, 0.9)

	return &models.ExecutionResult{
		Type:         models.SubtaskTypeCode,
		Files:        files,
		Explanation:  resp.Explanation,
		NextSteps:    resp.NextSteps,
		Deliverables: paths,
	}, nil
}

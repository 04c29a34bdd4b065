package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	docRecallLimit = 3
	readmeFile     = "README.md"
	docsDir        = "docs"
)

var (
	slugStrip  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces = regexp.MustCompile(`\s+`)
	fencedDoc  = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*\\n(.*?)\\n?```\\s*$")
)

// sourceExtensions mark deliverables that name source files.
var sourceExtensions = []string{".go", ".js", ".cjs", ".mjs", ".ts", ".tsx", ".jsx", ".py"}

// DocumentHandler writes Markdown documentation produced by the completer.
type DocumentHandler struct {
	deps Deps
}

func (h *DocumentHandler) Type() models.SubtaskType { return models.SubtaskTypeDocument }

func (h *DocumentHandler) Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error) {
	info := h.gather(ctx, st, taskCtx)
	infoJSON, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode documentation info: %w", err)
	}

	text, err := h.deps.LLM.Complete(ctx, fmt.Sprintf(documentPrompt,
		st.Title, st.Description, infoJSON, bulleted(st.Deliverables)), completionOptions)
	if err != nil {
		return nil, fmt.Errorf("generate documentation: %w", err)
	}
	content := unfence(text)
	if content == "" {
		return nil, errors.New("documentation completion was empty")
	}

	name := DocFileName(st)
	full, err := h.deps.Files.WriteFile(name, content)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	h.deps.Logger.Info("documentation written", zap.String("path", name))

	remember(ctx, h.deps, memory.TypeDocumentation, map[string]any{
		"subtask":       st.Title,
		"file":          name,
		"documentation": truncate(content, 1000),
	}, st, 0.6)

	return &models.ExecutionResult{
		Type:         models.SubtaskTypeDocument,
		File:         &models.GeneratedFile{Path: name, FullPath: full, Content: content},
		Deliverables: []string{name},
	}, nil
}

type docInfo struct {
	Project      string   `json:"project"`
	Description  string   `json:"description"`
	RelatedFiles []string `json:"relatedFiles"`
	RecentWork   []string `json:"recentWork,omitempty"`
}

func (h *DocumentHandler) gather(ctx context.Context, st models.Subtask, taskCtx map[string]any) docInfo {
	info := docInfo{Project: "project", Description: st.Description, RelatedFiles: []string{}}
	if name, ok := taskCtx["projectName"].(string); ok && name != "" {
		info.Project = name
	}
	for _, d := range st.Deliverables {
		for _, ext := range sourceExtensions {
			if strings.Contains(d, ext) {
				info.RelatedFiles = append(info.RelatedFiles, d)
				break
			}
		}
	}
	info.RecentWork = recall(ctx, h.deps, st.Description, docRecallLimit)
	return info
}

// DocFileName derives the output path. Titles naming the readme or the
// main documentation map to README.md; otherwise a Markdown deliverable
// wins over docs/<slug>.md.
func DocFileName(st models.Subtask) string {
	lower := strings.ToLower(st.Title)
	if strings.Contains(lower, "readme") || strings.Contains(lower, "main documentation") {
		return readmeFile
	}
	for _, d := range st.Deliverables {
		d = strings.TrimSpace(d)
		if strings.HasSuffix(strings.ToLower(d), ".md") && !strings.ContainsAny(d, " \t") {
			return d
		}
	}
	slug := slugSpaces.ReplaceAllString(strings.TrimSpace(slugStrip.ReplaceAllString(lower, "")), "-")
	if slug == "" {
		slug = "notes"
	}
	return path.Join(docsDir, slug+".md")
}

// unfence strips a single code fence wrapping the whole completion.
func unfence(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedDoc.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

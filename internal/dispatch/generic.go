package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// GenericHandler asks for an advisory action plan. It has no side effects.
type GenericHandler struct {
	deps Deps
}

func (h *GenericHandler) Type() models.SubtaskType { return models.SubtaskTypeGeneric }

func (h *GenericHandler) Execute(ctx context.Context, st models.Subtask, taskCtx map[string]any) (*models.ExecutionResult, error) {
	text, err := h.deps.LLM.Complete(ctx, fmt.Sprintf(genericPrompt,
		st.Title, st.Description, st.Type, contextJSON(taskCtx)), completionOptions)
	if err != nil {
		return nil, fmt.Errorf("plan actions: %w", err)
	}
	return &models.ExecutionResult{
		Type:         models.SubtaskTypeGeneric,
		ActionPlan:   strings.TrimSpace(text),
		Deliverables: []string{"Task analyzed"},
	}, nil
}

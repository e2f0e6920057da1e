// internal/agents/workflow.go
package agents

import (
	"context"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
)

// WorkflowAgent starts a process instance on the workflow engine, carrying
// the question and its analysis as process variables.
type WorkflowAgent struct {
	client zbc.Client
	cfg    config.WorkflowAgentConfig
	logger logger.Logger
}

func NewWorkflowAgent(client zbc.Client, cfg config.WorkflowAgentConfig, log logger.Logger) *WorkflowAgent {
	return &WorkflowAgent{
		client: client,
		cfg:    cfg,
		logger: log.With(map[string]interface{}{"agent": string(models.AgentWorkflow)}),
	}
}

func (a *WorkflowAgent) Name() models.Agent {
	return models.AgentWorkflow
}

func (a *WorkflowAgent) Dispatch(ctx context.Context, analysis *models.AnalysisResult, _ *models.StructuredQuery) (*models.AgentResponse, error) {
	variables := map[string]any{
		"question":  analysis.CorrectedQuestion,
		"intention": analysis.Intention,
		"entities":  analysis.Entities,
		"priority":  string(analysis.Priority),
	}

	cmd, err := a.client.NewCreateInstanceCommand().
		BPMNProcessId(a.cfg.ProcessID).
		LatestVersion().
		VariablesFromMap(variables)
	if err != nil {
		return nil, stderrors.NewWorkflowStartFailedError(a.cfg.ProcessID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, config.GetDuration(a.cfg.RequestTimeout))
	defer cancel()

	instance, err := cmd.Send(callCtx)
	if err != nil {
		return nil, stderrors.NewWorkflowStartFailedError(a.cfg.ProcessID, err)
	}

	a.logger.Info("workflow instance started", map[string]interface{}{
		"processId":   a.cfg.ProcessID,
		"instanceKey": instance.GetProcessInstanceKey(),
	})

	return &models.AgentResponse{
		Success:     true,
		Explanation: fmt.Sprintf("Processus '%s' démarré", a.cfg.ProcessID),
		Metadata: map[string]any{
			"processInstanceKey": instance.GetProcessInstanceKey(),
			"processVersion":     instance.GetVersion(),
		},
	}, nil
}

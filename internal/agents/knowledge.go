// internal/agents/knowledge.go
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
)

// KnowledgeAgent forwards a question to the retrieval-augmented knowledge
// service and normalizes its reply.
type KnowledgeAgent struct {
	cfg        config.KnowledgeAgentConfig
	httpClient *http.Client
	logger     logger.Logger
}

func NewKnowledgeAgent(cfg config.KnowledgeAgentConfig, log logger.Logger) *KnowledgeAgent {
	return &KnowledgeAgent{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     log.With(map[string]interface{}{"agent": string(models.AgentRAG)}),
	}
}

func (a *KnowledgeAgent) Name() models.Agent {
	return models.AgentRAG
}

func (a *KnowledgeAgent) Dispatch(ctx context.Context, analysis *models.AnalysisResult, _ *models.StructuredQuery) (*models.AgentResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"question": analysis.CorrectedQuestion,
		"topK":     a.cfg.TopK,
		"context":  analysis.Context,
	})
	if err != nil {
		return nil, stderrors.NewKnowledgeQueryFailedError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, config.GetDuration(a.cfg.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.cfg.BaseURL+"/api/knowledge/query", bytes.NewReader(payload))
	if err != nil {
		return nil, stderrors.NewKnowledgeQueryFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, stderrors.NewKnowledgeQueryFailedError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stderrors.NewKnowledgeQueryFailedError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, stderrors.NewKnowledgeQueryFailedError(fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed struct {
		Answer  string           `json:"answer"`
		Sources []map[string]any `json:"sources"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, stderrors.NewKnowledgeQueryFailedError(err)
	}

	a.logger.Info("knowledge query completed", map[string]interface{}{
		"sources": len(parsed.Sources),
	})

	return &models.AgentResponse{
		Success:     true,
		Explanation: parsed.Answer,
		Data:        parsed.Sources,
	}, nil
}

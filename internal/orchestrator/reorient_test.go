package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"assistant-router/internal/common/logger"
	"assistant-router/internal/llm"
	"assistant-router/internal/models"
)

// fakeGateway implements llm.Gateway with pluggable behavior.
type fakeGateway struct {
	analyzeFn func(ctx context.Context, question, template string) (*models.SemanticAnalysis, error)
	messageFn func(ctx context.Context, prompt string, opts llm.Options) (string, error)
	jsonFn    func(ctx context.Context, prompt string, opts llm.Options) (map[string]any, error)
}

func (f *fakeGateway) AnalyzeQuestion(ctx context.Context, question, template string) (*models.SemanticAnalysis, error) {
	if f.analyzeFn == nil {
		return nil, errors.New("not configured")
	}
	return f.analyzeFn(ctx, question, template)
}

func (f *fakeGateway) SendMessage(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	if f.messageFn == nil {
		return "", errors.New("not configured")
	}
	return f.messageFn(ctx, prompt, opts)
}

func (f *fakeGateway) SendJSON(ctx context.Context, prompt string, opts llm.Options) (map[string]any, error) {
	if f.jsonFn == nil {
		return nil, errors.New("not configured")
	}
	return f.jsonFn(ctx, prompt, opts)
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func databaseAnalysis() *models.AnalysisResult {
	return &models.AnalysisResult{
		CorrectedQuestion: "Combien de chantiers sont en cours?",
		Intention:         "CONSULTATION",
		Category:          models.CategoryDatabase,
		TargetAgent:       models.AgentQueryBuilder,
		Priority:          models.PriorityNormal,
		Context:           "objectif initial",
	}
}

func TestReorient_AppliesConfidentOverride(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{
				"newCategory": "KNOWLEDGE",
				"newAgent":    "rag",
				"explanation": "question de procédure, pas de données",
				"confidence":  0.9,
			}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	analysis := databaseAnalysis()
	result := r.Reorient(context.Background(), analysis.CorrectedQuestion, analysis)

	assert.Equal(t, models.AgentRAG, result.TargetAgent)
	assert.Equal(t, models.CategoryKnowledge, result.Category)
	assert.Equal(t, "objectif initial | Réorienté: question de procédure, pas de données", result.Context)
}

func TestReorient_VerdictCaseNormalized(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{
				"newCategory": "knowledge",
				"newAgent":    "RAG",
				"explanation": "question de procédure",
				"confidence":  0.9,
			}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentRAG, result.TargetAgent)
	assert.Equal(t, models.CategoryKnowledge, result.Category)
}

func TestReorient_SameAgentDifferentCaseIgnored(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"newCategory": "DATABASE", "newAgent": "QueryBuilder", "confidence": 0.95}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
	assert.Equal(t, "objectif initial", result.Context)
}

func TestReorient_UnknownAgentIgnored(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"newAgent": "searchbot", "confidence": 0.99}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
}

func TestReorient_MissingCategoryDerivedFromAgent(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"newAgent": "rag", "explanation": "procédure", "confidence": 0.9}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentRAG, result.TargetAgent)
	assert.Equal(t, models.CategoryKnowledge, result.Category)
}

func TestReorient_SkipsHautePriority(t *testing.T) {
	gatewayCalled := false
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			gatewayCalled = true
			return map[string]any{"newAgent": "rag", "confidence": 1.0}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	analysis := databaseAnalysis()
	analysis.Priority = models.PriorityHaute
	result := r.Reorient(context.Background(), analysis.CorrectedQuestion, analysis)

	assert.False(t, gatewayCalled)
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
	assert.Equal(t, "objectif initial", result.Context)
}

func TestReorient_LowConfidenceIgnored(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"newCategory": "KNOWLEDGE", "newAgent": "rag", "confidence": 0.5}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
}

func TestReorient_SameAgentIgnored(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"newCategory": "DATABASE", "newAgent": "querybuilder", "confidence": 0.95}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
	assert.Equal(t, "objectif initial", result.Context)
}

func TestReorient_GatewayFailureSwallowed(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return nil, errors.New("gateway down")
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	analysis := databaseAnalysis()
	result := r.Reorient(context.Background(), "q", analysis)
	assert.Equal(t, analysis, result)
}

func TestReorient_RawTextVerdictIgnored(t *testing.T) {
	gateway := &fakeGateway{
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return map[string]any{"raw": "je ne sais pas"}, nil
		},
	}
	r := NewReorienter(gateway, 0.7, createTestLogger(t))

	result := r.Reorient(context.Background(), "q", databaseAnalysis())
	assert.Equal(t, models.AgentQueryBuilder, result.TargetAgent)
}

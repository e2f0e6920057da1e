package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-router/internal/agents"
	"assistant-router/internal/cache"
	"assistant-router/internal/classify"
	"assistant-router/internal/common/config"
	"assistant-router/internal/history"
	"assistant-router/internal/llm"
	"assistant-router/internal/models"
	"assistant-router/internal/querybuilder"
	"assistant-router/internal/temporal"
)

// fakeAgent records the dispatches it receives.
type fakeAgent struct {
	name     models.Agent
	response *models.AgentResponse
	err      error
	panics   bool

	calls        int
	lastAnalysis *models.AnalysisResult
	lastQuery    *models.StructuredQuery
}

func (f *fakeAgent) Name() models.Agent { return f.name }

func (f *fakeAgent) Dispatch(_ context.Context, analysis *models.AnalysisResult, query *models.StructuredQuery) (*models.AgentResponse, error) {
	f.calls++
	f.lastAnalysis = analysis
	f.lastQuery = query
	if f.panics {
		panic("agent exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type testHarness struct {
	service *Service
	gateway *fakeGateway
	cache   *cache.ResponseCache
	history *history.MemoryStore

	sqlAgent    *fakeAgent
	searchAgent *fakeAgent
	ragAgent    *fakeAgent
}

func routingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		SearchKeywords: []string{
			"cherche", "recherche", "trouve", "ou est", "document",
			"a propos de", "concernant", "similaire a",
		},
		SpecificKeywords: []string{
			"combien", "total", "moyenne", "liste", "pourcentage", "entre", "depuis",
		},
		KnowledgeKeywords: []string{"comment", "pourquoi", "explique", "definir", "procedure"},
		SearchIntents:     []string{"recherche", "chercher", "trouver", "localiser"},
		DomainCategories: map[string]string{
			"CHANTIERS": "DATABASE",
			"FINANCES":  "DATABASE",
			"CLIENTS":   "DATABASE",
			"PERSONNEL": "KNOWLEDGE",
		},
		ReorientThreshold:    0.7,
		JoinConventionFormat: "%s.id = principale.%s_id",
		DefaultFilterType:    "chantier",
	}
}

func createHarness(t *testing.T) *testHarness {
	log := createTestLogger(t)
	clock := func() time.Time {
		return time.Date(2026, time.August, 12, 10, 0, 0, 0, time.UTC)
	}

	gateway := &fakeGateway{
		// Reorientation stays neutral unless a test overrides it.
		jsonFn: func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
			return nil, errors.New("no verdict")
		},
	}

	h := &testHarness{
		gateway: gateway,
		cache:   cache.New(cache.NewMemoryStore(), time.Hour, false, log),
		history: history.NewMemoryStore(50),
		sqlAgent: &fakeAgent{
			name: models.AgentQueryBuilder,
			response: &models.AgentResponse{
				Success:     true,
				Explanation: "Chantiers en cours",
				Data: []map[string]any{
					{"id": 1, "nom": "Chantier Nord"},
					{"id": 2, "nom": "Chantier Sud"},
				},
			},
		},
		searchAgent: &fakeAgent{
			name: models.AgentElasticsearch,
			response: &models.AgentResponse{
				Success:     true,
				Explanation: "3 document(s) trouvé(s)",
				Data:        []map[string]any{{"id": "doc-1"}},
			},
		},
		ragAgent: &fakeAgent{
			name: models.AgentRAG,
			response: &models.AgentResponse{
				Success:     true,
				Explanation: "Voici la procédure.",
			},
		},
	}

	classifier := classify.NewClassifier(routingConfig())
	builder := querybuilder.NewBuilder(temporal.NewResolverAt(clock, log), routingConfig(), log)
	registry := agents.NewRegistry(h.sqlAgent, h.searchAgent, h.ragAgent)
	reorienter := NewReorienter(gateway, 0.7, log)

	h.service = NewService(
		classifier, builder, gateway,
		h.cache, h.history, registry, reorienter,
		true, log,
	)
	return h
}

func chantiersPayload(action string) *models.SemanticAnalysis {
	return &models.SemanticAnalysis{
		Analyse: models.AnalyseSemantique{
			Intention: models.Intention{Action: action, Objectif: "Lister les chantiers"},
			Temporalite: models.Temporalite{
				Periode: models.Periode{Type: "FIXE"},
			},
			Entites: models.Entites{
				Principale: models.EntitePrincipale{Nom: "chantiers"},
			},
		},
		Structure: models.StructureRequete{
			Tables: []models.TableSpec{
				{Nom: "chantiers", Alias: "c", Type: "PRINCIPALE", Colonnes: []string{"id", "nom", "statut"}},
			},
		},
	}
}

func TestAsk_ExplicitSearchShortCircuit(t *testing.T) {
	h := createHarness(t)
	analyzeCalled := false
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		analyzeCalled = true
		return nil, errors.New("must not be called")
	}

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "cherche le devis pour le projet Dupont",
	})

	assert.False(t, analyzeCalled)
	assert.Equal(t, 1, h.searchAgent.calls)
	assert.Equal(t, models.CategorySearch, h.searchAgent.lastAnalysis.Category)
	assert.Equal(t, models.AgentElasticsearch, h.searchAgent.lastAnalysis.TargetAgent)
	assert.Equal(t, models.PriorityNormal, h.searchAgent.lastAnalysis.Priority)
	assert.Empty(t, h.searchAgent.lastAnalysis.Entities)
	assert.Contains(t, resp.Answer, "3 document(s) trouvé(s)")

	// Cached under the normalized key.
	entry, err := h.cache.Get(context.Background(), "cherche le devis pour le projet dupont")
	require.NoError(t, err)
	assert.Equal(t, resp.Answer, entry.Answer)
	assert.Equal(t, models.AgentElasticsearch, entry.Analysis.TargetAgent)
}

func TestAsk_DatabaseRouting(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, question, _ string) (*models.SemanticAnalysis, error) {
		return chantiersPayload("CONSULTATION"), nil
	}

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers sont en cours?",
	})

	require.Equal(t, 1, h.sqlAgent.calls)
	assert.Equal(t, models.CategoryDatabase, h.sqlAgent.lastAnalysis.Category)
	require.NotNil(t, h.sqlAgent.lastQuery)

	main, ok := h.sqlAgent.lastQuery.MainTable()
	require.True(t, ok)
	assert.Equal(t, "chantiers", main.Name)

	assert.Contains(t, resp.Answer, "Chantiers en cours")
	assert.Len(t, resp.Results, 2)

	// Routed answers are never cached.
	_, err := h.cache.Get(context.Background(), "combien de chantiers sont en cours?")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestAsk_DatabaseMetadataCarriesDerivation(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		payload := chantiersPayload("CONSULTATION")
		payload.Analyse.Informations.Champs = []string{"nom", "statut"}
		payload.Structure.Conditions = []models.ConditionSpec{
			{Type: "TEMPOREL", Expression: "date BETWEEN :date_debut AND :date_fin"},
			{Type: "FILTRE", Expression: "statut = :statut", Parametres: map[string]any{"statut": "EN_COURS"}},
		}
		return payload, nil
	}

	h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers sont en cours?",
	})

	require.Equal(t, 1, h.sqlAgent.calls)
	meta := h.sqlAgent.lastAnalysis.Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "chantiers", meta.IdentifiedTables.Main)

	// FIXE period without explicit dates resolves to the harness clock's day.
	require.NotNil(t, meta.TemporalRange)
	assert.Equal(t, "2026-08-12", meta.TemporalRange.Start)
	assert.Equal(t, "2026-08-12", meta.TemporalRange.End)

	require.NotNil(t, meta.RequiredFields)
	assert.Equal(t, []string{"nom", "statut"}, meta.RequiredFields.Selection)
	assert.Equal(t, []string{"date_debut", "date_fin", "statut"}, meta.RequiredFields.Filter)
}

func TestAsk_ClassifiedSearchAnswerNotCached(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		return chantiersPayload("rechercher"), nil
	}

	// No search keyword in the wording; SEARCH comes from the classified
	// intention, so the answer depends on live index data.
	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Les devis du projet Dupont",
	})

	require.Equal(t, 1, h.searchAgent.calls)
	assert.False(t, h.searchAgent.lastAnalysis.ExplicitSearch)
	assert.Contains(t, resp.Answer, "3 document(s) trouvé(s)")

	_, err := h.cache.Get(context.Background(), "les devis du projet dupont")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestAsk_ReorientationOverride(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		return chantiersPayload("CONSULTATION"), nil
	}
	h.gateway.jsonFn = func(_ context.Context, _ string, _ llm.Options) (map[string]any, error) {
		return map[string]any{
			"newCategory": "KNOWLEDGE",
			"newAgent":    "rag",
			"explanation": "question de procédure",
			"confidence":  0.9,
		}, nil
	}

	h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers sont en cours?",
	})

	assert.Equal(t, 0, h.sqlAgent.calls)
	require.Equal(t, 1, h.ragAgent.calls)
	assert.Equal(t, models.AgentRAG, h.ragAgent.lastAnalysis.TargetAgent)
	assert.True(t, strings.HasSuffix(h.ragAgent.lastAnalysis.Context, " | Réorienté: question de procédure"))
}

func TestAsk_GeneralPathIsCached(t *testing.T) {
	h := createHarness(t)
	analyzeCalls := 0
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		analyzeCalls++
		payload := chantiersPayload("CONSULTATION")
		payload.Analyse.Entites.Principale.Nom = "meteo"
		return payload, nil
	}
	messageCalls := 0
	h.gateway.messageFn = func(_ context.Context, prompt string, opts llm.Options) (string, error) {
		messageCalls++
		assert.NotEmpty(t, opts.System)
		return "Il fera beau demain.", nil
	}

	req := &models.AskRequest{Question: "Quel temps fera-t-il demain? liste stp"}

	resp := h.service.Ask(context.Background(), req)
	assert.Equal(t, "Il fera beau demain.", resp.Answer)
	assert.Equal(t, 1, analyzeCalls)
	assert.Equal(t, 1, messageCalls)

	// Second ask is served from cache without touching the gateway.
	resp = h.service.Ask(context.Background(), req)
	assert.Equal(t, "Il fera beau demain.", resp.Answer)
	assert.Equal(t, 1, analyzeCalls)
	assert.Equal(t, 1, messageCalls)
}

func TestAsk_CachedRoutedAnalysisRedispatches(t *testing.T) {
	h := createHarness(t)

	// A cached explicit-search decision re-runs against live data instead of
	// returning the stale answer.
	analysis := &models.AnalysisResult{
		CorrectedQuestion: "cherche un devis",
		Category:          models.CategorySearch,
		TargetAgent:       models.AgentElasticsearch,
		Priority:          models.PriorityNormal,
		ExplicitSearch:    true,
	}
	require.NoError(t, h.cache.Set(context.Background(), "cherche un devis", "ancienne réponse", analysis))

	resp := h.service.Ask(context.Background(), &models.AskRequest{Question: "cherche un devis"})

	assert.Equal(t, 1, h.searchAgent.calls)
	assert.Contains(t, resp.Answer, "3 document(s) trouvé(s)")
}

func TestAsk_GatewayFailureYieldsApology(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		return nil, errors.New("gateway down")
	}

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers?",
	})
	assert.Equal(t, Apology, resp.Answer)
}

func TestAsk_InvalidPayloadYieldsApology(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		payload := chantiersPayload("CONSULTATION")
		payload.Structure.Tables = nil
		return payload, nil
	}

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers?",
	})
	assert.Equal(t, Apology, resp.Answer)
	assert.Equal(t, 0, h.sqlAgent.calls)
}

func TestAsk_DispatchFailureYieldsApology(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		return chantiersPayload("CONSULTATION"), nil
	}
	h.sqlAgent.err = errors.New("connection refused")

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien de chantiers?",
	})
	assert.Equal(t, Apology, resp.Answer)
}

func TestAsk_PanicIsRecovered(t *testing.T) {
	h := createHarness(t)
	h.searchAgent.panics = true

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "cherche un devis",
	})
	assert.Equal(t, Apology, resp.Answer)
}

func TestAsk_EmptyQuestionYieldsApology(t *testing.T) {
	h := createHarness(t)

	resp := h.service.Ask(context.Background(), &models.AskRequest{Question: "   "})
	assert.Equal(t, Apology, resp.Answer)
}

func TestAsk_HistoryWrite(t *testing.T) {
	h := createHarness(t)

	h.service.Ask(context.Background(), &models.AskRequest{
		Question:   "cherche le devis Dupont",
		UserID:     "user-1",
		UseHistory: true,
	})

	turns, err := h.history.Recent(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "cherche le devis Dupont", turns[0].Content)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.NotEmpty(t, turns[1].Content)
}

func TestAsk_HistorySkippedWithoutUserID(t *testing.T) {
	h := createHarness(t)

	h.service.Ask(context.Background(), &models.AskRequest{
		Question:   "cherche le devis Dupont",
		UseHistory: true,
	})

	turns, err := h.history.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAsk_AvailabilityFormatting(t *testing.T) {
	h := createHarness(t)
	h.gateway.analyzeFn = func(_ context.Context, _, _ string) (*models.SemanticAnalysis, error) {
		return chantiersPayload("consult_availability"), nil
	}
	h.sqlAgent.response = &models.AgentResponse{
		Success:     true,
		Explanation: "Disponibilités",
		Data: []map[string]any{
			{"nom": "Equipe A", "date_debut": "2026-09-01", "date_fin": "2026-09-05"},
			{"nom": "Equipe B", "date_debut": "2026-09-08", "date_fin": "2026-09-12"},
		},
	}

	resp := h.service.Ask(context.Background(), &models.AskRequest{
		Question: "Combien d'equipes disponibles entre septembre?",
	})

	assert.True(t, strings.HasPrefix(resp.Answer, "Disponibilités trouvées (2):"))
	assert.Contains(t, resp.Answer, "Equipe A: du 2026-09-01 au 2026-09-05")
	assert.Contains(t, resp.Answer, "Equipe B: du 2026-09-08 au 2026-09-12")
}

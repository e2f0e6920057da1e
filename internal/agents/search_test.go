package agents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/models"
)

func createSearchAgent(t *testing.T, handler http.HandlerFunc) *SearchAgent {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	return NewSearchAgent(es, config.SearchAgentConfig{
		Index:      "documents",
		Timeout:    5000,
		MaxResults: 10,
	}, createTestLogger(t))
}

func searchHits() map[string]any {
	return map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": 2},
			"hits": []map[string]any{
				{
					"_id":     "doc-1",
					"_score":  3.2,
					"_source": map[string]any{"title": "Devis Dupont", "content": "..."},
				},
				{
					"_id":     "doc-2",
					"_score":  1.1,
					"_source": map[string]any{"title": "Plan Dupont", "content": "..."},
				},
			},
		},
	}
}

func TestSearchAgent_Dispatch_Success(t *testing.T) {
	var requestBody map[string]any
	agent := createSearchAgent(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &requestBody)

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchHits())
	})

	analysis := &models.AnalysisResult{
		CorrectedQuestion: "cherche le devis pour le projet Dupont",
		Category:          models.CategorySearch,
		TargetAgent:       models.AgentElasticsearch,
		Entities:          []string{"Dupont"},
	}

	resp, err := agent.Dispatch(context.Background(), analysis, nil)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "2 document(s) trouvé(s)", resp.Explanation)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "doc-1", resp.Data[0]["id"])
	assert.Equal(t, "Devis Dupont", resp.Data[0]["title"])

	// The question drives the multi_match and each entity adds a boost clause.
	boolQuery := requestBody["query"].(map[string]any)["bool"].(map[string]any)
	should := boolQuery["should"].([]any)
	require.Len(t, should, 2)
}

func TestSearchAgent_Dispatch_IndexError(t *testing.T) {
	agent := createSearchAgent(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := agent.Dispatch(context.Background(), &models.AnalysisResult{CorrectedQuestion: "q"}, nil)
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeSearchQueryFailed, stderrors.CodeOf(err))
}

func TestSearchAgent_Dispatch_EmptyResult(t *testing.T) {
	agent := createSearchAgent(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": 0},
				"hits":  []any{},
			},
		})
	})

	resp, err := agent.Dispatch(context.Background(), &models.AnalysisResult{CorrectedQuestion: "q"}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data)
	assert.Equal(t, "0 document(s) trouvé(s)", resp.Explanation)
}

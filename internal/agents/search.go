// internal/agents/search.go
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/models"
)

// SearchAgent runs full-text queries against the document index.
type SearchAgent struct {
	es     *elasticsearch.Client
	cfg    config.SearchAgentConfig
	logger logger.Logger
}

func NewSearchAgent(es *elasticsearch.Client, cfg config.SearchAgentConfig, log logger.Logger) *SearchAgent {
	return &SearchAgent{
		es:     es,
		cfg:    cfg,
		logger: log.With(map[string]interface{}{"agent": string(models.AgentElasticsearch)}),
	}
}

func (a *SearchAgent) Name() models.Agent {
	return models.AgentElasticsearch
}

func (a *SearchAgent) Dispatch(ctx context.Context, analysis *models.AnalysisResult, _ *models.StructuredQuery) (*models.AgentResponse, error) {
	body, err := json.Marshal(a.buildQuery(analysis))
	if err != nil {
		return nil, stderrors.NewSearchQueryFailedError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, config.GetDuration(a.cfg.Timeout))
	defer cancel()

	res, err := a.es.Search(
		a.es.Search.WithContext(callCtx),
		a.es.Search.WithIndex(a.cfg.Index),
		a.es.Search.WithBody(bytes.NewReader(body)),
		a.es.Search.WithSize(a.cfg.MaxResults),
	)
	if err != nil {
		return nil, stderrors.NewSearchQueryFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, stderrors.NewSearchQueryFailedError(fmt.Errorf("search returned %s", res.Status()))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, stderrors.NewSearchQueryFailedError(err)
	}

	data := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		record := map[string]any{
			"id":    hit.ID,
			"score": hit.Score,
		}
		for k, v := range hit.Source {
			record[k] = v
		}
		data = append(data, record)
	}

	a.logger.Info("document search completed", map[string]interface{}{
		"index": a.cfg.Index,
		"total": parsed.Hits.Total.Value,
		"hits":  len(data),
	})

	return &models.AgentResponse{
		Success:     true,
		Explanation: fmt.Sprintf("%d document(s) trouvé(s)", parsed.Hits.Total.Value),
		Data:        data,
		Metadata:    map[string]any{"total": parsed.Hits.Total.Value},
	}, nil
}

// buildQuery favors the corrected question, boosted by any extracted
// entities.
func (a *SearchAgent) buildQuery(analysis *models.AnalysisResult) map[string]any {
	should := []map[string]any{
		{
			"multi_match": map[string]any{
				"query":  analysis.CorrectedQuestion,
				"fields": []string{"title^2", "content"},
			},
		},
	}
	for _, entity := range analysis.Entities {
		should = append(should, map[string]any{
			"match_phrase": map[string]any{
				"content": map[string]any{"query": entity, "boost": 1.5},
			},
		})
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should":               should,
				"minimum_should_match": 1,
			},
		},
	}
}

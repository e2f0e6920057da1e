// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/metrics"
	"assistant-router/internal/models"
)

// Store is the minimal key-value contract the cache runs on. Implementations
// may enforce TTL natively (Redis) or leave expiry to the cache's own
// timestamp check (memory).
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrNotFound signals a cache miss.
var ErrNotFound = errors.New("cache: entry not found")

// Entry is the stored value: a computed answer, the analysis that produced
// it, and the write timestamp used for lazy expiry.
type Entry struct {
	Answer    string                 `json:"answer"`
	Analysis  *models.AnalysisResult `json:"analysis,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// ResponseCache maps normalized questions to previously computed answers.
// Only general and explicit-search answers are stored; routed answers depend
// on live data and are never cached (policy, not an omission).
type ResponseCache struct {
	store       Store
	ttl         time.Duration
	cacheRouted bool
	logger      logger.Logger
	now         func() time.Time
}

func New(store Store, ttl time.Duration, cacheRouted bool, log logger.Logger) *ResponseCache {
	return &ResponseCache{
		store:       store,
		ttl:         ttl,
		cacheRouted: cacheRouted,
		logger:      log.With(map[string]interface{}{"component": "cache"}),
		now:         time.Now,
	}
}

// NormalizeKey is the canonical question-to-key transformation: trimmed and
// lower-cased.
func NormalizeKey(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Get returns the cached entry for a question, or ErrNotFound. Expired
// entries are deleted on read; there is no background sweep.
func (c *ResponseCache) Get(ctx context.Context, question string) (*Entry, error) {
	key := NormalizeKey(question)

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		_ = c.store.Delete(ctx, key)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, ErrNotFound
	}

	if c.now().Sub(entry.CreatedAt) > c.ttl {
		_ = c.store.Delete(ctx, key)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, ErrNotFound
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &entry, nil
}

// Set stores an answer under the normalized question key. Only general
// answers and explicit-search results are written; any other routed analysis
// depends on live data and is skipped unless the cache-routed policy flag is
// on. A SEARCH route reached through classification counts as routed, not
// explicit.
func (c *ResponseCache) Set(ctx context.Context, question, answer string, analysis *models.AnalysisResult) error {
	if analysis != nil && !c.cacheRouted {
		if analysis.TargetAgent != models.AgentGeneral && !analysis.ExplicitSearch {
			return nil
		}
	}

	entry := Entry{
		Answer:    answer,
		Analysis:  analysis,
		CreatedAt: c.now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return c.store.Set(ctx, NormalizeKey(question), string(raw), c.ttl)
}

// Delete removes a cached question.
func (c *ResponseCache) Delete(ctx context.Context, question string) error {
	return c.store.Delete(ctx, NormalizeKey(question))
}

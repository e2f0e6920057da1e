// internal/history/store.go
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"assistant-router/internal/common/logger"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message in a user's conversation log.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the per-user bounded append log of conversation turns.
type Store interface {
	Append(ctx context.Context, userID string, role Role, content string) error
	Recent(ctx context.Context, userID string, n int) ([]Turn, error)
}

// RedisStore keeps each user's history in a Redis list, trimmed to maxTurns
// so a long-lived conversation cannot grow without bound.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	logger   logger.Logger
}

func NewRedisStore(client *redis.Client, maxTurns int, log logger.Logger) *RedisStore {
	return &RedisStore{
		client:   client,
		maxTurns: maxTurns,
		logger:   log.With(map[string]interface{}{"component": "history"}),
	}
}

func historyKey(userID string) string {
	return "conversation:" + userID
}

func (s *RedisStore) Append(ctx context.Context, userID string, role Role, content string) error {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return err
	}

	key := historyKey(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, userID string, n int) ([]Turn, error) {
	raws, err := s.client.LRange(ctx, historyKey(userID), int64(-n), -1).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, 0, len(raws))
	for _, raw := range raws {
		var turn Turn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			s.logger.Warn("skipping unreadable history turn", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// MemoryStore is an in-process history log for tests.
type MemoryStore struct {
	mu       sync.Mutex
	maxTurns int
	logs     map[string][]Turn
}

func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		maxTurns: maxTurns,
		logs:     make(map[string][]Turn),
	}
}

func (s *MemoryStore) Append(_ context.Context, userID string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.logs[userID], Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.logs[userID] = turns
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, userID string, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.logs[userID]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

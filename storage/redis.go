// Redis workflow session store.
//
// Information Hiding:
// - Key layout (session document + per-workflow index set) hidden
// - TTL refresh on save hidden
// - redis.Nil translated to session.ErrNotFound

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richinex/inkwell/session"
)

// DefaultSessionTTL is how long an idle session survives in Redis.
const DefaultSessionTTL = 24 * time.Hour

const (
	redisSessionPrefix  = "inkwell:session:"
	redisWorkflowPrefix = "inkwell:workflow:"
)

// RedisSessionStore implements session.Store on Redis.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore wraps an existing client. A non-positive ttl uses DefaultSessionTTL.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

// OpenRedisSessionStore parses a redis:// URL, connects and pings.
func OpenRedisSessionStore(ctx context.Context, url string, ttl time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisSessionStore(client, ttl), nil
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return redisSessionPrefix + id
}

func (s *RedisSessionStore) workflowKey(name string) string {
	return redisWorkflowPrefix + name
}

// Load returns the session or session.ErrNotFound.
func (s *RedisSessionStore) Load(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if sess.State == nil {
		sess.State = session.NewState()
	}
	return &sess, nil
}

// Save writes the session document with the store TTL and indexes it by workflow.
func (s *RedisSessionStore) Save(ctx context.Context, sess *session.Session) error {
	c := *sess
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), data, s.ttl)
	pipe.SAdd(ctx, s.workflowKey(sess.WorkflowName), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the session document. The workflow index is pruned lazily by List.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List returns live session ids for a workflow in sorted order.
func (s *RedisSessionStore) List(ctx context.Context, workflowName string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.workflowKey(workflowName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := []string{}
	for _, id := range members {
		n, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.workflowKey(workflowName), id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

var _ session.Store = (*RedisSessionStore)(nil)

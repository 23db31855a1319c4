package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medreflect/medreflect/internal/models"
)

const redisKeyPrefix = "medreflect:session:"

// RedisStore keeps sessions in Redis with a TTL. Sessions remain
// process-lifetime semantics from the caller's point of view; Redis is used
// so multiple service replicas can read the same registry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	// Update is read-modify-write; the runner is the only writer per
	// session, but a local lock keeps concurrent updates to different
	// fields of one session safe within this process.
	mu sync.Mutex
}

// NewRedisStore creates a Redis-backed store. A zero ttl defaults to 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id string) string { return redisKeyPrefix + id }

// Create registers a new session.
func (r *RedisStore) Create(ctx context.Context, s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, redisKey(s.ID), raw, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	return nil
}

// Get returns the stored session.
func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Update applies mutate through a read-modify-write cycle.
func (r *RedisStore) Update(ctx context.Context, id string, mutate func(*models.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(s)

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(id), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// List returns all sessions ordered by creation time.
func (r *RedisStore) List(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		var s models.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

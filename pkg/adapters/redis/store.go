// Package redis persists run traces in Redis so hosts can keep replayable
// histories beyond the life of the process.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

const defaultPrefix = "flatagents:trace:"

// Store implements ports.TraceStore on a Redis client. Traces are stored
// as JSON values; an index set keeps List cheap.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ ports.TraceStore = (*Store)(nil)

// StoreOption configures the store.
type StoreOption func(*Store)

// WithPrefix changes the key prefix (default "flatagents:trace:").
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets an expiration on stored traces. Zero means no expiration.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// NewFromClient creates a store on an existing Redis client.
func NewFromClient(client *backend.Client, opts ...StoreOption) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(runID string) string { return s.prefix + runID }
func (s *Store) indexKey() string        { return s.prefix + "index" }

// Save implements ports.TraceStore.
func (s *Store) Save(ctx context.Context, trace *domain.Trace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(trace.RunID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), trace.RunID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	return nil
}

// Load implements ports.TraceStore.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Trace, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err == backend.Nil {
		// The index entry may have outlived an expired trace.
		s.client.SRem(ctx, s.indexKey(), runID)
		return nil, ports.ErrTraceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}
	var trace domain.Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &trace, nil
}

// List implements ports.TraceStore. Expired traces are lazily removed from
// the index as they are discovered.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list traces: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Delete implements ports.TraceStore.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.SRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete trace: %w", err)
	}
	return nil
}

// Package redis implements the revocation ledger on Redis. Keys carry a
// TTL equal to the token lifetime, and the single-use refresh check uses
// GETDEL so concurrent replays race for one atomic winner.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quokkaworks/identity/internal/identity/revocation"
)

const (
	outstandingRefreshPrefix = "outstanding-refresh:"
	revokedAccessPrefix      = "revoked-access:"

	// markerValue is the stored payload; presence of the key is the
	// signal, the value itself is irrelevant.
	markerValue = "1"
)

// Store is a revocation.Store backed by a Redis client.
type Store struct {
	client *redis.Client
}

var _ revocation.Store = (*Store)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection before returning.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	s := &Store{client: client}
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) MarkRefreshOutstanding(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("mark refresh outstanding: non-positive ttl %v", ttl)
	}

	if err := s.client.Set(ctx, outstandingRefreshPrefix+tokenID, markerValue, ttl).Err(); err != nil {
		return unavailable("mark refresh outstanding", err)
	}
	return nil
}

func (s *Store) ConsumeRefreshIfOutstanding(ctx context.Context, tokenID string) (bool, error) {
	// GETDEL is atomic: of N concurrent callers exactly one observes the
	// value, the rest observe redis.Nil.
	_, err := s.client.GetDel(ctx, outstandingRefreshPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("consume refresh", err)
	}
	return true, nil
}

func (s *Store) RemoveRefreshOutstanding(ctx context.Context, tokenID string) error {
	if err := s.client.Del(ctx, outstandingRefreshPrefix+tokenID).Err(); err != nil {
		return unavailable("remove refresh outstanding", err)
	}
	return nil
}

func (s *Store) MarkAccessRevoked(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, nothing to denylist.
		return nil
	}

	if err := s.client.Set(ctx, revokedAccessPrefix+tokenID, markerValue, ttl).Err(); err != nil {
		return unavailable("mark access revoked", err)
	}
	return nil
}

func (s *Store) IsAccessRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedAccessPrefix+tokenID).Result()
	if err != nil {
		return false, unavailable("is access revoked", err)
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", revocation.ErrUnavailable, op, err)
}

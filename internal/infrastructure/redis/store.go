package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-qr-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store is the ephemeral key-value store behind sessions and exchange keys.
// A missing key is reported as domain.ErrNotFound; every other failure is
// returned wrapped so callers can map it to an outage.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Delete removes key and reports how many keys were actually deleted.
func (s *Store) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del %s: %w", key, err)
	}
	return n, nil
}

// Take reads and deletes key in one step. Of two concurrent callers only one
// sees the value.
func (s *Store) Take(ctx context.Context, key string) (string, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis getdel %s: %w", key, err)
	}
	return v, nil
}

// Rotate replaces oldKey with newKey holding value. The swap only happens if
// oldKey still exists and is untouched while the transaction runs; otherwise
// domain.ErrNotFound is returned and nothing changes.
func (s *Store) Rotate(ctx context.Context, oldKey, newKey, value string, ttl time.Duration) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, oldKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, oldKey)
			pipe.Set(ctx, newKey, value, ttl)
			return nil
		})
		return err
	}, oldKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, redis.TxFailedErr):
		return domain.ErrNotFound
	default:
		return fmt.Errorf("redis rotate %s: %w", oldKey, err)
	}
}

// Ping is used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

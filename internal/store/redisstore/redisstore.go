package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func principalKey(tokenHash string) string { return "principal:" + tokenHash }

// GetPrincipal returns redis.Nil when the token has not been cached.
func (s *Store) GetPrincipal(ctx context.Context, tokenHash string) ([]byte, error) {
	return s.rdb.Get(ctx, principalKey(tokenHash)).Bytes()
}

func (s *Store) SetPrincipal(ctx context.Context, tokenHash string, data []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, principalKey(tokenHash), data, ttl).Err()
}

func (s *Store) DeletePrincipal(ctx context.Context, tokenHash string) error {
	return s.rdb.Del(ctx, principalKey(tokenHash)).Err()
}

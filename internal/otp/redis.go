package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "otp:%s"
	maxRetries = 5
	// minTTL keeps Redis from rejecting a zero or negative expiration.
	minTTL = time.Second
)

// ErrContention is returned when optimistic retries on one key are exhausted.
var ErrContention = errors.New("otp: too much contention on challenge")

// RedisStore keeps challenges in Redis, one key per phone, with WATCH/MULTI for
// check-and-update.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a RedisStore backed by rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(phone string) string {
	return fmt.Sprintf(keyPrefix, phone)
}

func ttlFor(e Entry) time.Duration {
	ttl := e.ExpiresAt.Sub(e.IssuedAt)
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

func (s *RedisStore) Put(ctx context.Context, phone string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(phone), b, ttlFor(e)).Err()
}

func (s *RedisStore) Check(ctx context.Context, phone, digest string, now time.Time, maxAttempts int) (Result, error) {
	k := key(phone)
	var res Result

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			res = ResultMissing
			return nil
		}
		if err != nil {
			return err
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}

		var next *Entry
		res, next = evaluate(&e, digest, now, maxAttempts)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
				return nil
			}
			b, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, k, b, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return ResultMissing, err
	}
	return ResultMissing, ErrContention
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.rdb.Del(ctx, key(phone)).Err()
}

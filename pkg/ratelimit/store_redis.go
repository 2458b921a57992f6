// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix     = "chatgate:ratelimit:"
	defaultRedisTTL        = 24 * time.Hour
	defaultRedisMaxRetries = 10
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisTTL sets the expiry applied to every record after a write.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// RedisStore keeps each record in a sorted set so several instances can share
// limiter state. Updates use optimistic WATCH/MULTI transactions.
//
// An empty record is the same as a missing key in Redis, so Update with an
// empty result removes the key.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	s := &RedisStore{
		client:     client,
		prefix:     DefaultRedisPrefix,
		ttl:        defaultRedisTTL,
		maxRetries: defaultRedisMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %v", ErrStoreUnavailable, addr, err)
	}
	return client, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Update applies fn inside a WATCH transaction, retrying on conflicts.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	rk := s.redisKey(key)

	txf := func(tx *redis.Tx) error {
		members, err := tx.ZRange(ctx, rk, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next := fn(parseMembers(members))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rk)
			if len(next) > 0 {
				pipe.ZAdd(ctx, rk, toMembers(next)...)
				pipe.Expire(ctx, rk, s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, rk)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: update %s: %v", ErrStoreUnavailable, key, err)
	}
	return fmt.Errorf("%w: update %s: too many concurrent writers", ErrStoreUnavailable, key)
}

// Load returns the record for key.
func (s *RedisStore) Load(ctx context.Context, key string) ([]time.Time, error) {
	members, err := s.client.ZRange(ctx, s.redisKey(key), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, key, err)
	}
	return parseMembers(members), nil
}

// Delete removes the record for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Keys scans for every record under the prefix.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Members are "<unixnano>:<index>" so equal timestamps stay distinct.
// Scores are not used for parsing because float64 loses nanosecond precision.
func toMembers(ts []time.Time) []redis.Z {
	out := make([]redis.Z, len(ts))
	for i, t := range ts {
		ns := t.UnixNano()
		out[i] = redis.Z{
			Score:  float64(ns),
			Member: strconv.FormatInt(ns, 10) + ":" + strconv.Itoa(i),
		}
	}
	return out
}

func parseMembers(members []string) []time.Time {
	if len(members) == 0 {
		return nil
	}
	out := make([]time.Time, 0, len(members))
	for _, m := range members {
		raw, _, _ := strings.Cut(m, ":")
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Unix(0, ns))
	}
	return out
}

var _ RecordStore = (*RedisStore)(nil)

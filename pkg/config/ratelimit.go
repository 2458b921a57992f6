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

package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Limiter store backends.
const (
	LimiterStoreMemory = "memory"
	LimiterStoreRedis  = "redis"
)

// RateLimitConfig configures the per-user sliding window limiter. Enabled,
// Calls and Period seed the settings store; admins may change them later.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,default=true"`

	Calls int `yaml:"calls,omitempty" json:"calls,omitempty" jsonschema:"title=Calls,minimum=1,maximum=100,default=5"`

	Period time.Duration `yaml:"period,omitempty" json:"period,omitempty" jsonschema:"title=Period,type=string,default=60s"`

	// CacheTTL is how long limiter settings are cached.
	// Default: 30s
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty" jsonschema:"title=Settings Cache TTL,type=string,default=30s"`

	// Store holds the per-user timestamps.
	Store string `yaml:"store,omitempty" json:"store,omitempty" jsonschema:"title=Store,enum=memory,enum=redis,default=memory"`

	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty" jsonschema:"title=Redis"`

	// SweepInterval is how often stale records are purged. Zero disables.
	// Default: 10m
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty" jsonschema:"title=Sweep Interval,type=string,default=10m"`
}

// RedisConfig locates the shared limiter store.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty" json:"address,omitempty" jsonschema:"title=Address,default=localhost:6379"`
	Password string `yaml:"password,omitempty" json:"password,omitempty" jsonschema:"title=Password"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty" jsonschema:"title=DB,minimum=0"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty" jsonschema:"title=Key Prefix,default=chatgate:ratelimit:"`
}

func (c *RateLimitConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.Calls == 0 {
		c.Calls = ratelimit.DefaultCalls
	}
	if c.Period == 0 {
		c.Period = ratelimit.DefaultPeriod
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = ratelimit.DefaultCacheTTL
	}
	if c.Store == "" {
		c.Store = LimiterStoreMemory
	}
	if c.Store == LimiterStoreRedis {
		if c.Redis.Address == "" {
			c.Redis.Address = "localhost:6379"
		}
		if c.Redis.Prefix == "" {
			c.Redis.Prefix = ratelimit.DefaultRedisPrefix
		}
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 10 * time.Minute
	}
}

func (c *RateLimitConfig) Validate() error {
	if c.Calls < settings.MinRateLimitCalls || c.Calls > settings.MaxRateLimitCalls {
		return fmt.Errorf("calls must be between %d and %d", settings.MinRateLimitCalls, settings.MaxRateLimitCalls)
	}
	if c.Period < time.Second || c.Period > time.Duration(settings.MaxRateLimitPeriod)*time.Second {
		return fmt.Errorf("period must be between 1s and %ds", settings.MaxRateLimitPeriod)
	}
	if c.Period%time.Second != 0 {
		return fmt.Errorf("period must be a whole number of seconds")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must be non-negative")
	}
	switch c.Store {
	case LimiterStoreMemory:
	case LimiterStoreRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis store")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis.db must be non-negative")
		}
	default:
		return fmt.Errorf("invalid store %q (valid: memory, redis)", c.Store)
	}
	return nil
}

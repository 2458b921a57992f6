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

// Package runtime assembles chatgate's services from a Config.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/admin"
	"github.com/kadirpekel/chatgate/pkg/assistant"
	"github.com/kadirpekel/chatgate/pkg/auth"
	"github.com/kadirpekel/chatgate/pkg/bot"
	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/llms"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/scheduler"
	"github.com/kadirpekel/chatgate/pkg/server"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Runtime owns every long-lived component.
type Runtime struct {
	mu     sync.RWMutex
	config *config.Config

	dbPool *config.DBPool
	redis  *redis.Client

	Settings  *settings.Service
	Access    *access.Service
	Quota     *quota.Tracker
	Contexts  *history.Manager
	Limiter   *ratelimit.SlidingWindowLimiter
	Backend   llms.Backend
	Pipeline  *assistant.Pipeline
	Dialog    *admin.Dialog
	Router    *bot.Router
	Scheduler *scheduler.DailyResetScheduler

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

type options struct {
	backend llms.Backend
}

// Option configures New.
type Option func(*options)

// WithBackend replaces the configured completion backend.
func WithBackend(b llms.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New builds a runtime from a validated config. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{config: cfg, dbPool: config.NewDBPool()}
	ok := false
	defer func() {
		if !ok {
			if err := r.Close(); err != nil {
				slog.Warn("Cleanup after failed start", "error", err)
			}
		}
	}()

	var err error
	if r.Metrics, err = observability.NewMetrics(cfg.Observability.Metrics); err != nil {
		return nil, err
	}
	if r.Tracer, err = observability.NewTracer(ctx, cfg.Observability.Tracing); err != nil {
		return nil, err
	}

	st, err := r.openStores(ctx)
	if err != nil {
		return nil, err
	}

	r.Settings = settings.NewService(st.settings, cfg.BotSettings(), cfg.Bot.AdminIDs,
		settings.WithModels(cfg.Bot.Models))
	r.Access = access.NewService(st.access, r.Settings.IsAdmin,
		access.WithDefaultMode(cfg.AccessMode()))
	r.Quota = quota.NewTracker(st.users, r.Settings.DefaultUserLimit)
	r.Contexts = history.NewManager(st.contexts, r.Settings.ContextSize)

	cache := ratelimit.NewSettingsCache(r.Settings, ratelimit.WithCacheTTL(cfg.RateLimit.CacheTTL))
	if r.Limiter, err = ratelimit.NewSlidingWindowLimiter(st.limiter, cache); err != nil {
		return nil, err
	}
	r.Settings.OnChange(r.onSettingsChange)

	r.Backend = o.backend
	if r.Backend == nil {
		r.Backend, err = llms.New(ctx, &cfg.LLM, cfg.Bot.SystemPrompt, r.Settings,
			llms.WithTracer(r.Tracer), llms.WithMetrics(r.Metrics))
		if err != nil {
			return nil, fmt.Errorf("failed to create llm backend: %w", err)
		}
	}

	r.Pipeline, err = assistant.New(r.Limiter, r.Quota, r.Contexts, r.Backend,
		assistant.WithTracer(r.Tracer), assistant.WithMetrics(r.Metrics))
	if err != nil {
		return nil, err
	}

	r.Scheduler = scheduler.New(r.Quota,
		scheduler.WithLocation(cfg.Quota.Location()),
		scheduler.WithResetHook(r.onQuotaReset))

	r.Dialog = admin.NewDialog(admin.NewMemorySessionStore(), r.Settings, r.Access, r.Quota)
	r.Router, err = bot.NewRouter(bot.RouterConfig{
		Assistant: r.Pipeline,
		Settings:  r.Settings,
		Access:    r.Access,
		Quota:     r.Quota,
		Contexts:  r.Contexts,
		Limiter:   r.Limiter,
		Dialog:    r.Dialog,
		Scheduler: r.Scheduler,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	slog.Info("Runtime ready",
		"storage", cfg.Storage.Backend,
		"limiter_store", cfg.RateLimit.Store,
		"backend", r.Backend.Name(),
		"admins", len(cfg.Bot.AdminIDs))
	return r, nil
}

// Config returns the active config.
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Server builds the admin API over this runtime.
func (r *Runtime) Server() (*server.Server, error) {
	cfg := r.Config()
	svc := server.Services{
		Chat:        r.Router,
		Settings:    r.Settings,
		Access:      r.Access,
		Quota:       r.Quota,
		Limiter:     r.Limiter,
		Scheduler:   r.Scheduler,
		Metrics:     r.Metrics,
		MetricsPath: cfg.Observability.Metrics.Path,
		Tracer:      r.Tracer,
	}
	if cfg.Server.Auth.Enabled {
		v, err := NewValidator(cfg.Server.Auth)
		if err != nil {
			return nil, err
		}
		svc.Auth = v
	}
	return server.New(cfg.Server, svc)
}

// NewValidator creates the token validator for the admin API.
func NewValidator(cfg config.AuthConfig) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(cfg.Secret, cfg.Issuer, cfg.Audience, auth.WithAcceptableSkew(30*time.Second))
}

// Reload applies a new config. Admin IDs and settings defaults take effect
// immediately; storage, limiter store and backend changes need a restart.
func (r *Runtime) Reload(ctx context.Context, cfg *config.Config) error {
	r.mu.Lock()
	old := r.config
	r.config = cfg
	r.mu.Unlock()

	changed, err := r.Settings.Reseed(ctx, cfg.BotSettings(), cfg.Bot.AdminIDs)
	if err != nil {
		return fmt.Errorf("failed to reseed settings: %w", err)
	}
	r.Limiter.RefreshSettings()

	if old.Storage != cfg.Storage || old.RateLimit.Store != cfg.RateLimit.Store || old.LLM.Provider != cfg.LLM.Provider {
		slog.Warn("Storage, limiter store or llm provider changed; restart to apply")
	}
	slog.Info("Configuration reloaded", "settings_changed", changed, "admins", len(cfg.Bot.AdminIDs))
	return nil
}

// RunSweeper purges stale limiter records every interval until ctx ends.
func (r *Runtime) RunSweeper(ctx context.Context) error {
	interval := r.Config().RateLimit.SweepInterval
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := r.Limiter.SweepStale(ctx, 2)
			if err != nil {
				slog.Warn("Rate limit sweep failed", "error", err)
				continue
			}
			if res.RemovedRequests > 0 || res.EmptyKeysRemoved > 0 {
				slog.Debug("Rate limit sweep",
					"removed_requests", res.RemovedRequests,
					"empty_users_removed", res.EmptyKeysRemoved,
					"remaining_users", res.RemainingKeys)
			}
		}
	}
}

// RunScheduler runs the daily quota reset if enabled.
func (r *Runtime) RunScheduler(ctx context.Context) error {
	if !r.Config().Quota.IsResetEnabled() {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.Scheduler.Run(ctx)
}

func (r *Runtime) onQuotaReset(n int, err error) {
	if err != nil {
		return
	}
	r.Metrics.RecordQuotaReset(context.Background(), n)
}

// onSettingsChange keeps derived state in step with the settings store.
func (r *Runtime) onSettingsChange(old, updated settings.BotSettings) {
	if old.RateLimitEnabled != updated.RateLimitEnabled ||
		old.RateLimitCalls != updated.RateLimitCalls ||
		old.RateLimitPeriod != updated.RateLimitPeriod {
		r.Limiter.RefreshSettings()
	}
	if old.ContextSize != updated.ContextSize {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := r.Contexts.ResizeAll(ctx, updated.ContextSize); err != nil {
			slog.Warn("Failed to resize contexts", "size", updated.ContextSize, "error", err)
		}
	}
}

// Close releases the backend, stores and telemetry.
func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if r.Backend != nil {
		if err := r.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := r.dbPool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := r.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := r.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer: %w", err))
	}
	return errors.Join(errs...)
}

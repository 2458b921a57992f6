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

// Package server exposes the admin API and the web chat transport over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/kadirpekel/chatgate"
	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/auth"
	"github.com/kadirpekel/chatgate/pkg/bot"
	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Services are the collaborators behind the routes. Auth, Metrics, Tracer
// and Scheduler are optional.
type Services struct {
	Chat      bot.Handler
	Settings  *settings.Service
	Access    *access.Service
	Quota     *quota.Tracker
	Limiter   *ratelimit.SlidingWindowLimiter
	Scheduler bot.NextRunner

	Auth        *auth.JWTValidator
	Metrics     *observability.Metrics
	MetricsPath string
	Tracer      *observability.Tracer
}

// Server serves the admin API.
type Server struct {
	cfg        config.ServerConfig
	svc        Services
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New validates svc and builds the router.
func New(cfg config.ServerConfig, svc Services) (*Server, error) {
	switch {
	case svc.Chat == nil:
		return nil, fmt.Errorf("chat handler is required")
	case svc.Settings == nil:
		return nil, fmt.Errorf("settings service is required")
	case svc.Access == nil:
		return nil, fmt.Errorf("access service is required")
	case svc.Quota == nil:
		return nil, fmt.Errorf("quota tracker is required")
	case svc.Limiter == nil:
		return nil, fmt.Errorf("limiter is required")
	}
	if cfg.Auth.Enabled && svc.Auth == nil {
		return nil, fmt.Errorf("auth is enabled but no validator was provided")
	}

	s := &Server{
		cfg: cfg,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: recovery -> tracing/metrics -> auth
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.svc.Tracer, s.svc.Metrics))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.svc.Auth != nil {
			r.Use(auth.RequireRole(s.svc.Auth, auth.RoleAdmin))
		}

		if s.svc.Metrics != nil {
			path := s.svc.MetricsPath
			if path == "" {
				path = "/metrics"
			}
			r.Method(http.MethodGet, path, s.svc.Metrics.Handler())
		}

		r.Route("/v1", func(r chi.Router) {
			r.Get("/stats", s.handleStats)

			r.Get("/users", s.handleListUsers)
			r.Get("/users/{id}", s.handleGetUser)
			r.Put("/users/{id}/limit", s.handleSetUserLimit)
			r.Post("/users/{id}/reset", s.handleResetUser)
			r.Post("/quota/reset", s.handleResetAll)

			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handlePatchSettings)

			r.Put("/ratelimit", s.handleSetRateLimit)
			r.Post("/ratelimit/sweep", s.handleSweep)
			r.Post("/ratelimit/bypass/{id}", s.handleBypass)

			r.Get("/access", s.handleGetAccess)
			r.Put("/access/mode", s.handleSetMode)
			r.Post("/access/whitelist/{id}", s.handleList((*access.Service).AddToWhitelist))
			r.Delete("/access/whitelist/{id}", s.handleList((*access.Service).RemoveFromWhitelist))
			r.Post("/access/blacklist/{id}", s.handleList((*access.Service).AddToBlacklist))
			r.Delete("/access/blacklist/{id}", s.handleList((*access.Service).RemoveFromBlacklist))

			r.Post("/chat", s.handleChat)
			if s.cfg.IsWebSocketEnabled() {
				r.Get("/chat/ws", s.handleChatWS)
			}
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "address", s.cfg.Address, "auth", s.svc.Auth != nil)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	slog.Info("HTTP server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": chatgate.GetVersion().Version})
}

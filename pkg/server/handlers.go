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

package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/auth"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// DefaultBypass is used when a bypass request names no duration.
const DefaultBypass = 5 * time.Minute

type statsResponse struct {
	RateLimit      ratelimit.GlobalStats `json:"rate_limit"`
	Users          quota.Summary         `json:"users"`
	Access         access.Stats          `json:"access"`
	NextQuotaReset *time.Time            `json:"next_quota_reset,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp statsResponse
	var err error

	if resp.RateLimit, err = s.svc.Limiter.GlobalStats(ctx); err != nil {
		writeErr(w, err)
		return
	}
	if resp.Users, err = s.svc.Quota.Summarize(ctx); err != nil {
		writeErr(w, err)
		return
	}
	if resp.Access, err = s.svc.Access.Stats(ctx); err != nil {
		writeErr(w, err)
		return
	}
	if s.svc.Scheduler != nil {
		next := s.svc.Scheduler.NextRun()
		resp.NextQuotaReset = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Quota.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []quota.Usage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

type userResponse struct {
	quota.Usage
	RateLimit ratelimit.Status `json:"rate_limit"`
}

func (s *Server) userView(ctx context.Context, userID int64) (userResponse, error) {
	usage, err := s.svc.Quota.Stats(ctx, userID)
	if err != nil {
		return userResponse{}, err
	}
	status, err := s.svc.Limiter.Status(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return userResponse{}, err
	}
	return userResponse{Usage: usage, RateLimit: status}, nil
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	view, err := s.userView(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetUserLimit(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Limit *int `json:"limit"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Limit == nil {
		writeError(w, http.StatusBadRequest, "limit is required")
		return
	}

	ctx := r.Context()
	if _, err := s.svc.Quota.GetOrCreate(ctx, id, "", ""); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.svc.Quota.SetLimit(ctx, id, *req.Limit); err != nil {
		writeErr(w, err)
		return
	}
	view, err := s.userView(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.svc.Quota.Reset(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	view, err := s.userView(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Quota.ResetAll(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	s.svc.Metrics.RecordQuotaReset(r.Context(), n)
	writeJSON(w, http.StatusOK, map[string]int{"users_reset": n})
}

type settingsResponse struct {
	Settings  settings.BotSettings   `json:"settings"`
	RateLimit settings.RateLimitInfo `json:"rate_limit"`
	Models    []string               `json:"models"`
}

func (s *Server) settingsView(ctx context.Context, bs settings.BotSettings) (settingsResponse, error) {
	info, err := s.svc.Settings.RateLimitInfo(ctx)
	if err != nil {
		return settingsResponse{}, err
	}
	if bs.ProxyKey != "" {
		bs.ProxyKey = maskSecret(bs.ProxyKey)
	}
	return settingsResponse{Settings: bs, RateLimit: info, Models: s.svc.Settings.Models()}, nil
}

func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request, bs settings.BotSettings) {
	view, err := s.settingsView(r.Context(), bs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	bs, err := s.svc.Settings.Get(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeSettings(w, r, bs)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	bs, err := s.svc.Settings.ApplyPatch(r.Context(), s.actor(r), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.svc.Limiter.RefreshSettings()
	s.writeSettings(w, r, bs)
}

func (s *Server) handleSetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
		Calls   *int  `json:"calls"`
		Period  *int  `json:"period"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	bs, err := s.svc.Settings.ApplyPatch(r.Context(), s.actor(r), settings.Patch{
		RateLimitEnabled: req.Enabled,
		RateLimitCalls:   req.Calls,
		RateLimitPeriod:  req.Period,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	s.svc.Limiter.RefreshSettings()
	s.writeSettings(w, r, bs)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	multiplier := 2
	if raw := r.URL.Query().Get("multiplier"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "multiplier must be a positive integer")
			return
		}
		multiplier = n
	}
	res, err := s.svc.Limiter.SweepStale(r.Context(), multiplier)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBypass(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	d := DefaultBypass
	if r.ContentLength != 0 {
		var req struct {
			Seconds int `json:"seconds"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Seconds < 0 {
			writeError(w, http.StatusBadRequest, "seconds must be positive")
			return
		}
		if req.Seconds > 0 {
			d = time.Duration(req.Seconds) * time.Second
		}
	}
	until := s.svc.Limiter.DisableTemporarily(strconv.FormatInt(id, 10), d)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "bypassed_until": until})
}

func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Access.Control(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode access.Mode `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := s.svc.Access.SetMode(ctx, req.Mode, s.actor(r)); err != nil {
		writeErr(w, err)
		return
	}
	s.handleGetAccess(w, r)
}

type listMethod func(*access.Service, context.Context, int64, int64) (bool, error)

func (s *Server) handleList(op listMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := userIDParam(w, r)
		if !ok {
			return
		}
		changed, err := op(s.svc.Access, r.Context(), id, s.actor(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "changed": changed})
	}
}

// actor attributes a change to the token's subject when it names a
// configured admin, and to the API otherwise.
func (s *Server) actor(r *http.Request) int64 {
	if claims := auth.GetClaims(r); claims != nil {
		if id, ok := claims.UserID(); ok && s.svc.Settings.IsAdmin(id) {
			return id
		}
	}
	return settings.APIActor
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****" + v[len(v)-4:]
}

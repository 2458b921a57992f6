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

// Package llms implements the completion backends: an OpenAI-compatible
// HTTP client (direct or through a proxy) and Google Gemini.
package llms

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Backend generates one assistant reply from the prior context and the new
// user text. Errors are *Error.
type Backend interface {
	Generate(ctx context.Context, history []history.Message, text string) (string, error)
	Name() string
	Close() error
}

// Pinger is implemented by backends that can check their endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Route is where and how a completion call is sent. It is resolved on every
// call so admins can switch model or proxy at runtime.
type Route struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Proxy        bool
}

type RouteFunc func(ctx context.Context) (Route, error)

// StaticRoute always resolves to r.
func StaticRoute(r Route) RouteFunc {
	return func(context.Context) (Route, error) {
		return r, nil
	}
}

// SettingsReader is the part of settings.Service a route needs.
type SettingsReader interface {
	Get(ctx context.Context) (settings.BotSettings, error)
}

// SettingsRoute overlays the current bot settings on direct. With the proxy
// enabled the base URL becomes ProxyURL + "/v1" and the proxy key, if set,
// replaces the API key. A settings failure falls back to direct.
func SettingsRoute(src SettingsReader, direct Route) RouteFunc {
	return func(ctx context.Context) (Route, error) {
		s, err := src.Get(ctx)
		if err != nil {
			slog.Warn("Failed to read settings for backend route, using direct route", "error", err)
			return direct, nil
		}

		r := direct
		if s.Model != "" {
			r.Model = s.Model
		}
		if s.SystemPrompt != "" {
			r.SystemPrompt = s.SystemPrompt
		}
		if s.UseProxy && s.ProxyURL != "" {
			r.BaseURL = strings.TrimRight(s.ProxyURL, "/") + "/v1"
			r.Proxy = true
			if s.ProxyKey != "" {
				r.APIKey = s.ProxyKey
			}
		}
		return r, nil
	}
}

type options struct {
	temperature float64
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	httpClient  *http.Client
	baseURL     string
	tracer      *observability.Tracer
	metrics     *observability.Metrics
}

func defaultOptions() options {
	return options{
		temperature: 0.7,
		timeout:     30 * time.Second,
		maxRetries:  2,
		retryDelay:  time.Second,
	}
}

// Option configures a backend.
type Option func(*options)

func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithMaxTokens caps the reply length. Zero leaves it to the provider.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithTimeout bounds one Generate call including retries.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithRetries(max int, delay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = max
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithBaseURL overrides the Gemini endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithTracer(t *observability.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// observe wraps one completion call in a span and records its duration and
// error kind.
func (o *options) observe(ctx context.Context, backend, model string, historyLen int, call func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	ctx, span := o.tracer.StartBackendCall(ctx, backend, model, historyLen)
	text, err := call(ctx)
	observability.EndWithError(span, err)
	o.metrics.RecordBackendCall(ctx, backend, time.Since(start), string(KindOf(err)))
	return text, err
}

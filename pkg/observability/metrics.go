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

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records chatgate counters through an OpenTelemetry meter backed by
// a private Prometheus registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	messages        metric.Int64Counter
	decisions       metric.Int64Counter
	backendDuration metric.Float64Histogram
	backendErrors   metric.Int64Counter
	quotaResets     metric.Int64Counter
	quotaResetUsers metric.Int64Counter
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
}

// NewMetrics returns nil when metrics are disabled.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)

	m := &Metrics{registry: registry, provider: provider}

	if m.messages, err = meter.Int64Counter(
		"chatgate_messages_total",
		metric.WithDescription("Inbound messages by pipeline outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	if m.decisions, err = meter.Int64Counter(
		"chatgate_ratelimit_decisions_total",
		metric.WithDescription("Sliding window admission decisions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	if m.backendDuration, err = meter.Float64Histogram(
		"chatgate_backend_duration_seconds",
		metric.WithDescription("Completion backend call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create backend duration histogram: %w", err)
	}

	if m.backendErrors, err = meter.Int64Counter(
		"chatgate_backend_errors_total",
		metric.WithDescription("Completion backend failures by kind"),
	); err != nil {
		return nil, fmt.Errorf("failed to create backend errors counter: %w", err)
	}

	if m.quotaResets, err = meter.Int64Counter(
		"chatgate_quota_resets_total",
		metric.WithDescription("Daily quota reset runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create quota resets counter: %w", err)
	}

	if m.quotaResetUsers, err = meter.Int64Counter(
		"chatgate_quota_reset_users_total",
		metric.WithDescription("Users whose quota was reset"),
	); err != nil {
		return nil, fmt.Errorf("failed to create quota reset users counter: %w", err)
	}

	if m.httpRequests, err = meter.Int64Counter(
		"chatgate_http_requests_total",
		metric.WithDescription("Admin API requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"chatgate_http_request_duration_seconds",
		metric.WithDescription("Admin API request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordMessage(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordDecision(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordBackendCall records one completion call. An empty kind means success.
func (m *Metrics) RecordBackendCall(ctx context.Context, backend string, duration time.Duration, kind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	m.backendDuration.Record(ctx, duration.Seconds(), attrs)
	if kind != "" {
		m.backendErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		))
	}
}

func (m *Metrics) RecordQuotaReset(ctx context.Context, users int) {
	if m == nil {
		return
	}
	m.quotaResets.Add(ctx, 1)
	if users > 0 {
		m.quotaResetUsers.Add(ctx, int64(users))
	}
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

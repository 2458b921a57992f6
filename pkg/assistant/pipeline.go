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

// Package assistant turns one inbound user message into one reply: it admits
// the message through the rate limiter, checks the user's quota, calls the
// completion backend with the rolling context and spends the quota.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/llms"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/users"
)

// Outcome classifies a handled message.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeBackendFailed  Outcome = "backend_failed"
)

// Message is one inbound text message.
type Message struct {
	UserID    int64
	FirstName string
	LastName  string
	Text      string
}

// Reply is what the transport sends back.
type Reply struct {
	Outcome Outcome `json:"outcome"`
	Text    string  `json:"text"`

	// RetryAfter is set for OutcomeRateLimited.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Remaining is the quota left after an answered message.
	Remaining int `json:"remaining"`

	// Err is the backend failure for OutcomeBackendFailed.
	Err error `json:"-"`
}

// Limiter admits events per key.
type Limiter interface {
	Admit(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Quota is the part of quota.Tracker the pipeline needs.
type Quota interface {
	GetOrCreate(ctx context.Context, userID int64, firstName, lastName string) (*users.Profile, error)
	CanRequest(ctx context.Context, userID int64) (bool, error)
	Use(ctx context.Context, userID int64) (int, error)
	Stats(ctx context.Context, userID int64) (quota.Usage, error)
}

// Contexts is the part of history.Manager the pipeline needs.
type Contexts interface {
	Snapshot(ctx context.Context, userID int64) ([]history.Message, error)
	Append(ctx context.Context, userID int64, role history.Role, content string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline handles messages. It is safe for concurrent use; per-user
// ordering is the caller's concern.
type Pipeline struct {
	limiter  Limiter
	quota    Quota
	contexts Contexts
	backend  llms.Backend

	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// New creates a pipeline.
func New(limiter Limiter, q Quota, contexts Contexts, backend llms.Backend, opts ...Option) (*Pipeline, error) {
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}
	if q == nil {
		return nil, errors.New("quota tracker is required")
	}
	if contexts == nil {
		return nil, errors.New("context manager is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	p := &Pipeline{
		limiter:  limiter,
		quota:    q,
		contexts: contexts,
		backend:  backend,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Backend returns the completion backend.
func (p *Pipeline) Backend() llms.Backend {
	return p.backend
}

// Handle processes msg. A non-nil error means a store failed; limiter
// denials, exhausted quotas and backend failures are reported in the Reply.
// Backend failures are not charged to the quota.
func (p *Pipeline) Handle(ctx context.Context, msg Message) (reply Reply, err error) {
	ctx, span := p.tracer.StartMessage(ctx, msg.UserID)
	defer func() {
		if reply.Outcome != "" {
			span.SetAttributes(attribute.String(observability.AttrOutcome, string(reply.Outcome)))
			p.metrics.RecordMessage(ctx, string(reply.Outcome))
		}
		observability.EndWithError(span, err)
	}()

	log := slog.With("user_id", msg.UserID)

	decision, err := p.limiter.Admit(ctx, strconv.FormatInt(msg.UserID, 10))
	if err != nil {
		log.Warn("Rate limiter unavailable, admitting message", "error", err)
		decision = ratelimit.Decision{Allowed: true}
	}
	p.metrics.RecordDecision(ctx, decision.Allowed)
	if !decision.Allowed {
		log.Info("Message rate limited", "retry_after", decision.RetryAfterSeconds())
		return Reply{
			Outcome:    OutcomeRateLimited,
			Text:       RateLimitedText(decision.RetryAfterSeconds()),
			RetryAfter: decision.RetryAfter,
		}, nil
	}

	if _, err := p.quota.GetOrCreate(ctx, msg.UserID, msg.FirstName, msg.LastName); err != nil {
		return Reply{}, fmt.Errorf("failed to load user %d: %w", msg.UserID, err)
	}

	ok, err := p.quota.CanRequest(ctx, msg.UserID)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		log.Info("Quota exhausted")
		return Reply{Outcome: OutcomeQuotaExhausted, Text: QuotaExhaustedText}, nil
	}

	prior, err := p.contexts.Snapshot(ctx, msg.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to load context for %d: %w", msg.UserID, err)
	}
	if err := p.contexts.Append(ctx, msg.UserID, history.RoleUser, msg.Text); err != nil {
		return Reply{}, fmt.Errorf("failed to append user turn for %d: %w", msg.UserID, err)
	}

	answer, genErr := p.backend.Generate(ctx, prior, msg.Text)
	if genErr != nil {
		log.Error("Backend call failed", "backend", p.backend.Name(), "kind", llms.KindOf(genErr), "error", genErr)
		return Reply{
			Outcome: OutcomeBackendFailed,
			Text:    llms.UserMessage(genErr),
			Err:     genErr,
		}, nil
	}

	if err := p.contexts.Append(ctx, msg.UserID, history.RoleAssistant, answer); err != nil {
		return Reply{}, fmt.Errorf("failed to append assistant turn for %d: %w", msg.UserID, err)
	}

	if _, err := p.quota.Use(ctx, msg.UserID); err != nil {
		// A concurrent message spent the last request first; the answer
		// already exists, so deliver it.
		if !errors.Is(err, quota.ErrQuotaExhausted) {
			return Reply{}, err
		}
		log.Warn("Quota spent concurrently", "error", err)
	}

	remaining := 0
	if usage, err := p.quota.Stats(ctx, msg.UserID); err != nil {
		log.Warn("Failed to read quota after use", "error", err)
	} else {
		remaining = usage.Remaining
	}

	return Reply{
		Outcome:   OutcomeAnswered,
		Text:      answer + Footer(remaining),
		Remaining: remaining,
	}, nil
}

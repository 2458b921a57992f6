package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/llms"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/users"
)

type fakeBackend struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	history [][]history.Message
	texts   []string
}

func (b *fakeBackend) Generate(_ context.Context, hist []history.Message, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.history = append(b.history, hist)
	b.texts = append(b.texts, text)
	if b.err != nil {
		return "", b.err
	}
	return b.answer, nil
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Close() error { return nil }

type fixture struct {
	pipeline *Pipeline
	backend  *fakeBackend
	tracker  *quota.Tracker
	contexts *history.Manager
	limiter  *ratelimit.SlidingWindowLimiter
}

func newFixture(t *testing.T, limit, calls int, opts ...Option) *fixture {
	t.Helper()
	source := ratelimit.SettingsSourceFunc(func(context.Context) (ratelimit.Settings, error) {
		return ratelimit.Settings{Enabled: true, Calls: calls, Period: time.Minute}, nil
	})
	limiter, err := ratelimit.NewSlidingWindowLimiter(ratelimit.NewMemoryStore(), ratelimit.NewSettingsCache(source))
	require.NoError(t, err)

	tracker := quota.NewTracker(users.NewMemoryStore(), func(context.Context) int { return limit })
	contexts := history.NewManager(history.NewMemoryStore(), func(context.Context) int { return 10 })
	backend := &fakeBackend{answer: "Hello!"}

	p, err := New(limiter, tracker, contexts, backend, opts...)
	require.NoError(t, err)
	return &fixture{pipeline: p, backend: backend, tracker: tracker, contexts: contexts, limiter: limiter}
}

func TestPipeline_Answered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 5)

	reply, err := f.pipeline.Handle(ctx, Message{UserID: 7, FirstName: "Ada", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, reply.Outcome)
	assert.Equal(t, 2, reply.Remaining)
	assert.Equal(t, "Hello!"+Footer(2), reply.Text)

	msgs, err := f.contexts.Snapshot(ctx, 7)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, history.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello!", msgs[1].Content)

	usage, err := f.tracker.Stats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
}

func TestPipeline_BackendSeesPriorContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 10)

	_, err := f.pipeline.Handle(ctx, Message{UserID: 1, Text: "first"})
	require.NoError(t, err)
	_, err = f.pipeline.Handle(ctx, Message{UserID: 1, Text: "second"})
	require.NoError(t, err)

	require.Len(t, f.backend.history, 2)
	assert.Empty(t, f.backend.history[0])
	require.Len(t, f.backend.history[1], 2)
	assert.Equal(t, "first", f.backend.history[1][0].Content)
	assert.Equal(t, "second", f.backend.texts[1])
}

func TestPipeline_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 2)

	for i := 0; i < 2; i++ {
		reply, err := f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAnswered, reply.Outcome)
	}

	reply, err := f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRateLimited, reply.Outcome)
	assert.Greater(t, reply.RetryAfter, time.Duration(0))
	assert.Contains(t, reply.Text, "Too many requests")
	assert.Equal(t, 2, f.backend.calls)

	// Another user is unaffected.
	reply, err = f.pipeline.Handle(ctx, Message{UserID: 2, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, reply.Outcome)
}

func TestPipeline_QuotaExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 10)

	reply, err := f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, reply.Outcome)
	assert.Equal(t, 0, reply.Remaining)

	reply, err = f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuotaExhausted, reply.Outcome)
	assert.Equal(t, QuotaExhaustedText, reply.Text)
	assert.Equal(t, 1, f.backend.calls)
}

func TestPipeline_BackendFailureNotCharged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 10)
	f.backend.err = &llms.Error{Kind: llms.KindTimeout, Message: "deadline"}

	reply, err := f.pipeline.Handle(ctx, Message{UserID: 3, Text: "slow"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBackendFailed, reply.Outcome)
	assert.Equal(t, llms.KindTimeout, llms.KindOf(reply.Err))
	assert.Equal(t, llms.UserMessage(reply.Err), reply.Text)

	usage, err := f.tracker.Stats(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, 5, usage.Remaining)

	// The user turn stays in the context; no assistant turn is added.
	msgs, err := f.contexts.Snapshot(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
}

type failingLimiter struct{}

func (failingLimiter) Admit(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestPipeline_LimiterFailureAdmits(t *testing.T) {
	ctx := context.Background()
	tracker := quota.NewTracker(users.NewMemoryStore(), nil)
	contexts := history.NewManager(history.NewMemoryStore(), nil)
	backend := &fakeBackend{answer: "ok"}

	p, err := New(failingLimiter{}, tracker, contexts, backend)
	require.NoError(t, err)

	reply, err := p.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, reply.Outcome)
}

func TestPipeline_Metrics(t *testing.T) {
	m, err := observability.NewMetrics(observability.MetricsConfig{Enabled: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	f := newFixture(t, 5, 1, WithMetrics(m))
	ctx := context.Background()
	_, err = f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)
	_, err = f.pipeline.Handle(ctx, Message{UserID: 1, Text: "x"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `outcome="answered"`)
	assert.Contains(t, rec.Body.String(), `outcome="rate_limited"`)
}

func TestPipeline_ConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 100)

	var wg sync.WaitGroup
	for u := int64(1); u <= 10; u++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := f.pipeline.Handle(ctx, Message{UserID: id, Text: "x"})
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	for u := int64(1); u <= 10; u++ {
		usage, err := f.tracker.Stats(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 5, usage.Used)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.Error(t, err)
}

package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Class
	}{
		{http.StatusTooManyRequests, Throttled},
		{http.StatusServiceUnavailable, Throttled},
		{http.StatusBadGateway, Transient},
		{http.StatusInternalServerError, Transient},
		{http.StatusBadRequest, Final},
		{http.StatusUnauthorized, Final},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassify(tt.status))
		})
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "body is replayed on retry")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond))
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FinalStatusReturnsResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := New().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := New(WithMaxRetries(2), WithBaseDelay(time.Millisecond)).Do(req)
	require.NotNil(t, resp)
	resp.Body.Close()

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, http.StatusBadGateway, ex.StatusCode)
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_LongHintGivesUpAtOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := New(WithMaxDelay(time.Second)).Do(req)
	require.NotNil(t, resp)
	resp.Body.Close()

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 2*time.Minute, ex.RetryAfter)
	assert.Contains(t, ex.Error(), "retry after 2m0s")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "10")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = New(WithMaxDelay(time.Minute)).Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenAIHints(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-remaining-requests", "0")
	h.Set("x-ratelimit-reset-requests", "6m0s")
	h.Set("x-ratelimit-remaining-tokens", "9000")
	h.Set("x-ratelimit-reset-tokens", "1s")

	hints := OpenAIHints(h)
	assert.Equal(t, 0, hints.RemainingRequests)
	assert.Equal(t, 9000, hints.RemainingTokens)
	assert.Equal(t, 6*time.Minute, hints.Reset, "only the exhausted window counts")
	assert.Equal(t, 6*time.Minute, hints.Wait())

	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, OpenAIHints(h).Wait())

	empty := OpenAIHints(http.Header{})
	assert.Equal(t, -1, empty.RemainingRequests)
	assert.Zero(t, empty.Wait())
}

func TestRetryAfterHints(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
	assert.Greater(t, RetryAfterHints(h).RetryAfter, 50*time.Second)

	h.Set("Retry-After", "soon")
	assert.Zero(t, RetryAfterHints(h).RetryAfter)
}

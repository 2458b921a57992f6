package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/history"
)

type geminiRecorder struct {
	mu   sync.Mutex
	path string
	body map[string]any
}

func newGeminiServer(t *testing.T, status int, body string) (*httptest.Server, *geminiRecorder) {
	t.Helper()
	rec := &geminiRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		rec.mu.Lock()
		rec.path = r.URL.Path
		rec.body = payload
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestGemini_Generate(t *testing.T) {
	srv, rec := newGeminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":" Bonjour "}]}}]}`)

	g, err := NewGemini(context.Background(), "test-key",
		StaticRoute(Route{Model: "gemini-2.0-flash", SystemPrompt: "Be kind."}),
		WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	hist := []history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}
	reply, err := g.Generate(context.Background(), hist, "translate")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", reply)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, strings.HasSuffix(rec.path, "gemini-2.0-flash:generateContent"), rec.path)

	contents, ok := rec.body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])

	system, ok := rec.body["systemInstruction"].(map[string]any)
	require.True(t, ok)
	parts := system["parts"].([]any)
	assert.Equal(t, "Be kind.", parts[0].(map[string]any)["text"])
}

func TestGemini_APIError(t *testing.T) {
	srv, _ := newGeminiServer(t, http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)

	g, err := NewGemini(context.Background(), "test-key", StaticRoute(Route{Model: "gemini-2.0-flash"}), WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), nil, "hi")
	e, ok := AsError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, KindRateLimited, e.Kind)
	assert.Equal(t, 429, e.StatusCode)
}

func TestBuildGeminiContents_HistorySystemMessages(t *testing.T) {
	hist := []history.Message{
		{Role: history.RoleSystem, Content: "persona"},
		{Role: history.RoleUser, Content: "q1"},
	}
	contents, system := buildGeminiContents("default", hist, "q2")
	assert.Equal(t, "persona", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "q2", contents[1].Parts[0].Text)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/config/provider"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

func validConfig() *Config {
	cfg := &Config{LLM: LLMConfig{Provider: LLMProviderOpenAI, APIKey: "sk-test"}}
	cfg.SetDefaults()
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Bot.IsOrdered())
	assert.Equal(t, settings.DefaultContextSize, cfg.Bot.ContextSize)
	assert.Equal(t, settings.DefaultUserLimit, cfg.Bot.DefaultUserLimit)
	assert.Equal(t, access.ModePublic, cfg.AccessMode())
	assert.Equal(t, settings.DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultOpenAIBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.LLM.Retries())
	assert.True(t, cfg.RateLimit.IsEnabled())
	assert.Equal(t, 5, cfg.RateLimit.Calls)
	assert.Equal(t, time.Minute, cfg.RateLimit.Period)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.CacheTTL)
	assert.Equal(t, LimiterStoreMemory, cfg.RateLimit.Store)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.SweepInterval)
	assert.True(t, cfg.Quota.IsResetEnabled())
	assert.Equal(t, StorageBackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.True(t, cfg.Server.IsWebSocketEnabled())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Contains(t, cfg.Bot.Models, settings.DefaultModel)
}

func TestConfig_BotSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.ContextSize = 20
	cfg.RateLimit.Period = 90 * time.Second
	cfg.RateLimit.Enabled = BoolPtr(false)

	s := cfg.BotSettings()
	assert.Equal(t, 20, s.ContextSize)
	assert.Equal(t, 90, s.RateLimitPeriod)
	assert.False(t, s.RateLimitEnabled)
	assert.Equal(t, cfg.LLM.Model, s.Model)
}

func TestConfig_ModelAllowList(t *testing.T) {
	t.Run("configured model is always allowed", func(t *testing.T) {
		cfg := &Config{LLM: LLMConfig{Provider: LLMProviderOpenAI, APIKey: "k", Model: "my-finetune"}}
		cfg.SetDefaults()
		assert.Contains(t, cfg.Bot.Models, "my-finetune")
		assert.Contains(t, cfg.Bot.Models, "gpt-4o")
		assert.NoError(t, cfg.Validate())
	})

	t.Run("gemini defaults", func(t *testing.T) {
		cfg := &Config{LLM: LLMConfig{Provider: LLMProviderGemini, APIKey: "k"}}
		cfg.SetDefaults()
		assert.Equal(t, GeminiModels[0], cfg.LLM.Model)
		assert.Equal(t, GeminiModels, cfg.Bot.Models)
		assert.Empty(t, cfg.LLM.BaseURL)
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad access mode", func(c *Config) { c.Bot.AccessMode = "friends" }, "access_mode"},
		{"negative admin id", func(c *Config) { c.Bot.AdminIDs = []int64{-3} }, "admin_ids"},
		{"context too large", func(c *Config) { c.Bot.ContextSize = 51 }, "context"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "claude" }, "invalid provider"},
		{"missing key", func(c *Config) { c.LLM.APIKey = "" }, "api_key"},
		{"proxy without url", func(c *Config) { c.LLM.UseProxy = true }, "proxy_url"},
		{"proxy without key ok", func(c *Config) {
			c.LLM.APIKey = ""
			c.LLM.UseProxy = true
			c.LLM.ProxyURL = "https://proxy.example.com"
		}, ""},
		{"temperature", func(c *Config) { c.LLM.Temperature = new(float64); *c.LLM.Temperature = 3 }, "temperature"},
		{"calls too high", func(c *Config) { c.RateLimit.Calls = 101 }, "calls"},
		{"sub-second period", func(c *Config) { c.RateLimit.Period = 1500 * time.Millisecond }, "whole number"},
		{"period too long", func(c *Config) { c.RateLimit.Period = 2 * time.Hour }, "period"},
		{"bad store", func(c *Config) { c.RateLimit.Store = "memcached" }, "invalid store"},
		{"bad timezone", func(c *Config) { c.Quota.Timezone = "Mars/Olympus" }, "timezone"},
		{"sql without database", func(c *Config) { c.Storage.Backend = StorageBackendSQL }, "database is required"},
		{"sql with undefined database", func(c *Config) {
			c.Storage = StorageConfig{Backend: StorageBackendSQL, Database: "main"}
		}, "not defined"},
		{"short jwt secret", func(c *Config) {
			c.Server.Auth.Enabled = true
			c.Server.Auth.Secret = "short"
		}, "secret"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "log format"},
		{"bad tracing exporter", func(c *Config) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.Exporter = "zipkin"
		}, "observability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_StorageDatabase(t *testing.T) {
	cfg := validConfig()
	_, err := cfg.StorageDatabase()
	assert.Error(t, err)

	cfg.Storage = StorageConfig{Backend: StorageBackendSQL, Database: "main"}
	cfg.Databases["main"] = &DatabaseConfig{Driver: "sqlite", Database: ":memory:"}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	db, err := cfg.StorageDatabase()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", db.DriverName())
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_CHATGATE_KEY", "sk-from-env")
	t.Setenv("TEST_CHATGATE_CALLS", "7")

	cfg, err := Parse([]byte(`
bot:
  admin_ids: [42, 43]
  access_mode: whitelist
  ordered: false
llm:
  provider: openai
  api_key: ${TEST_CHATGATE_KEY}
  timeout: 45s
rate_limit:
  calls: ${TEST_CHATGATE_CALLS}
  period: 90
  store: ${TEST_CHATGATE_STORE:-memory}
quota:
  timezone: UTC
`))
	require.NoError(t, err)

	assert.Equal(t, []int64{42, 43}, cfg.Bot.AdminIDs)
	assert.Equal(t, access.ModeWhitelist, cfg.AccessMode())
	assert.False(t, cfg.Bot.IsOrdered())
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 7, cfg.RateLimit.Calls)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Period)
	assert.Equal(t, LimiterStoreMemory, cfg.RateLimit.Store)
	assert.Equal(t, "UTC", cfg.Quota.Location().String())
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"llm": {"api_key": "k", "provider": "openai"}, "bot": {"context_size": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Bot.ContextSize)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "llm:\n  api_key: k\n  provider: openai\nbogus: 1\n"},
		{"invalid values", "llm:\n  api_key: k\n  provider: openai\nbot:\n  context_size: 500\n"},
		{"malformed", "llm: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatgate.yaml")
	write := func(size int) {
		data := []byte("llm:\n  provider: openai\n  api_key: k\nbot:\n  context_size: " + strconv.Itoa(size) + "\n")
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	write(4)

	reloaded := make(chan *Config, 1)
	cfg, loader, err := LoadConfigFile(context.Background(), path, WithOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}))
	require.NoError(t, err)
	defer loader.Close()
	assert.Equal(t, 4, cfg.Bot.ContextSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loader.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	write(8)

	select {
	case c := <-reloaded:
		assert.Equal(t, 8, c.Bot.ContextSize)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, _, err := LoadConfigFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// chanProvider serves data from memory and signals on demand.
type chanProvider struct {
	mu      sync.Mutex
	data    []byte
	changes chan struct{}
}

func (p *chanProvider) Type() provider.Type { return "memory" }

func (p *chanProvider) Load(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, nil
}

func (p *chanProvider) Watch(context.Context) (<-chan struct{}, error) { return p.changes, nil }
func (p *chanProvider) Close() error                                   { return nil }

func (p *chanProvider) set(data string) {
	p.mu.Lock()
	p.data = []byte(data)
	p.mu.Unlock()
	p.changes <- struct{}{}
}

func TestLoader_WatchSkipsUnchangedContent(t *testing.T) {
	const base = "llm:\n  provider: openai\n  api_key: k\n"
	p := &chanProvider{data: []byte(base), changes: make(chan struct{})}

	var calls atomic.Int32
	loader := NewLoader(p, WithOnChange(func(*Config) { calls.Add(1) }))
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, loader.Current())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loader.Watch(ctx) }()

	p.set(base)                                 // same bytes
	p.set(base + "bot:\n  context_size: 500\n") // invalid, keeps previous
	p.set(base + "bot:\n  context_size: 3\n")
	p.set(base + "bot:\n  context_size: 3\n") // same again

	cancel()
	<-done
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, loader.Current().Bot.ContextSize)
}

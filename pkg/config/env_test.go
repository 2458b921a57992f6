package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_CHATGATE_HOST", "redis.local")
	t.Setenv("TEST_CHATGATE_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_CHATGATE_HOST}:6379", "redis.local:6379"},
		{"$TEST_CHATGATE_HOST", "redis.local"},
		{"${TEST_CHATGATE_EMPTY:-fallback}", "fallback"},
		{"${TEST_CHATGATE_UNSET_VAR:-a:b}", "a:b"},
		{"${TEST_CHATGATE_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.in))
		})
	}
}

func TestExpandEnvVarsInData_TypesScalars(t *testing.T) {
	t.Setenv("TEST_CHATGATE_N", "12")
	t.Setenv("TEST_CHATGATE_B", "true")

	out := ExpandEnvVarsInData(map[string]any{
		"n":    "${TEST_CHATGATE_N}",
		"b":    "${TEST_CHATGATE_B}",
		"list": []any{"${TEST_CHATGATE_N}", "literal"},
		"raw":  7,
	}).(map[string]any)

	assert.Equal(t, 12, out["n"])
	assert.Equal(t, true, out["b"])
	assert.Equal(t, []any{12, "literal"}, out["list"])
	assert.Equal(t, 7, out["raw"])
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	t.Setenv(EnvOpenAIModel, "gpt-4o")
	t.Setenv(EnvOpenAIUseProxy, "false")
	t.Setenv(EnvContextSize, "12")
	t.Setenv(EnvDefaultUserLimit, "80")
	t.Setenv(EnvAdminUserID, "100, 200")
	t.Setenv(EnvRateLimitCalls, "3")
	t.Setenv(EnvRateLimitPeriod, "30")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 12, cfg.Bot.ContextSize)
	assert.Equal(t, 80, cfg.Bot.DefaultUserLimit)
	assert.Equal(t, []int64{100, 200}, cfg.Bot.AdminIDs)
	assert.Equal(t, 3, cfg.RateLimit.Calls)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Period)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad int", EnvContextSize, "ten"},
		{"bad bool", EnvOpenAIUseProxy, "maybe"},
		{"bad admin id", EnvAdminUserID, "1,x"},
		{"out of range", EnvRateLimitCalls, "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvOpenAIAPIKey, "sk-env")
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_CHATGATE_DOTENV=loaded\n"), 0o644))

	t.Chdir(dir)

	t.Setenv("TEST_CHATGATE_DOTENV", "")
	os.Unsetenv("TEST_CHATGATE_DOTENV")

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "loaded", os.Getenv("TEST_CHATGATE_DOTENV"))
}

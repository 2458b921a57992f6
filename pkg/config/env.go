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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvVars substitutes ${VAR:-default}, ${VAR} and $VAR, in that order.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.braced.FindStringSubmatch(match)[1])
	})
	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.simple.FindStringSubmatch(match)[1])
	})
	return s
}

// parseValue types an expanded scalar so that `calls: ${CALLS}` decodes
// into an int field.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// ExpandEnvVarsInData walks decoded YAML and expands every string leaf.
func ExpandEnvVarsInData(data any) any {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result
	default:
		return v
	}
}

// LoadDotEnv loads .env.local then .env from the working directory.
// Variables already set in the process win. Missing files are ignored.
func LoadDotEnv() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Environment variables read by FromEnv.
const (
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIModel      = "OPENAI_MODEL"
	EnvOpenAIUseProxy   = "OPENAI_USE_PROXY"
	EnvOpenAIProxyURL   = "OPENAI_PROXY_URL"
	EnvOpenAIProxyKey   = "OPENAI_PROXY_KEY"
	EnvContextSize      = "CONTEXT_SIZE"
	EnvDefaultUserLimit = "DEFAULT_USER_LIMIT"
	EnvAdminUserID      = "ADMIN_USER_ID"
	EnvRateLimitCalls   = "RATE_LIMIT_CALLS"
	EnvRateLimitPeriod  = "RATE_LIMIT_PERIOD"
)

// FromEnv builds a config from environment variables alone. ADMIN_USER_ID
// may hold several comma-separated IDs. RATE_LIMIT_PERIOD is in seconds.
// The result is defaulted and validated.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.LLM.Provider = LLMProviderOpenAI
	cfg.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.LLM.Model = os.Getenv(EnvOpenAIModel)
	cfg.LLM.ProxyURL = os.Getenv(EnvOpenAIProxyURL)
	cfg.LLM.ProxyKey = os.Getenv(EnvOpenAIProxyKey)

	var err error
	if cfg.LLM.UseProxy, err = envBool(EnvOpenAIUseProxy); err != nil {
		return nil, err
	}
	if cfg.Bot.ContextSize, err = envInt(EnvContextSize); err != nil {
		return nil, err
	}
	if cfg.Bot.DefaultUserLimit, err = envInt(EnvDefaultUserLimit); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Calls, err = envInt(EnvRateLimitCalls); err != nil {
		return nil, err
	}
	period, err := envInt(EnvRateLimitPeriod)
	if err != nil {
		return nil, err
	}
	cfg.RateLimit.Period = time.Duration(period) * time.Second
	if cfg.Bot.AdminIDs, err = envIDs(EnvAdminUserID); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	return cfg, nil
}

func envInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, raw)
	}
	return n, nil
}

func envBool(name string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, raw)
	}
	return b, nil
}

func envIDs(name string) ([]int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a user id", name, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

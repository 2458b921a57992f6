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

// Package config loads the chatgate configuration.
//
// A config is YAML read through a provider.Provider. Values may reference the
// environment with ${VAR} or ${VAR:-default}. After decoding, SetDefaults
// fills every unset field and Validate rejects inconsistent combinations.
// FromEnv builds the same structure from environment variables alone.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/observability"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Config is the root configuration.
type Config struct {
	// Bot holds admin IDs and the defaults seeded into the settings store.
	Bot BotConfig `yaml:"bot,omitempty" json:"bot,omitempty" jsonschema:"title=Bot"`

	// LLM configures the completion backend.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM"`

	// RateLimit configures the sliding window limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty" jsonschema:"title=Rate Limit"`

	// Quota configures the daily quota reset.
	Quota QuotaConfig `yaml:"quota,omitempty" json:"quota,omitempty" jsonschema:"title=Quota"`

	// Storage selects where users, contexts, settings and access control live.
	Storage StorageConfig `yaml:"storage,omitempty" json:"storage,omitempty" jsonschema:"title=Storage"`

	// Databases are named SQL connections referenced by Storage.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty" jsonschema:"title=Databases"`

	// Server configures the HTTP admin API.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server"`

	// Observability configures metrics and tracing.
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty" jsonschema:"title=Observability"`

	// Logger configures logging. CLI flags take precedence.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty" jsonschema:"title=Logger"`
}

func (c *Config) SetDefaults() {
	c.Bot.SetDefaults()
	c.LLM.SetDefaults()
	c.Bot.Models = modelAllowList(c.Bot.Models, c.LLM)
	c.RateLimit.SetDefaults()
	c.Quota.SetDefaults()
	c.Storage.SetDefaults()
	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
	c.Logger.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Bot.Validate(); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	for name, db := range c.Databases {
		if db == nil {
			return fmt.Errorf("databases.%s: empty definition", name)
		}
		if err := db.Validate(); err != nil {
			return fmt.Errorf("databases.%s: %w", name, err)
		}
	}
	if c.Storage.IsSQL() {
		if _, ok := c.Databases[c.Storage.Database]; !ok {
			return fmt.Errorf("storage: database %q is not defined in databases", c.Storage.Database)
		}
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	// The seeded settings must pass the same checks admins are held to.
	seed := c.BotSettings()
	if err := seed.Validate(c.Bot.Models); err != nil {
		return err
	}
	return nil
}

// BotSettings renders the defaults the settings store is seeded with.
func (c *Config) BotSettings() settings.BotSettings {
	s := settings.Defaults()
	s.DefaultUserLimit = c.Bot.DefaultUserLimit
	s.ContextSize = c.Bot.ContextSize
	s.WelcomeMessage = c.Bot.WelcomeMessage
	s.SystemPrompt = c.Bot.SystemPrompt
	s.Model = c.LLM.Model
	s.UseProxy = c.LLM.UseProxy
	s.ProxyURL = c.LLM.ProxyURL
	s.ProxyKey = c.LLM.ProxyKey
	s.RateLimitEnabled = c.RateLimit.IsEnabled()
	s.RateLimitCalls = c.RateLimit.Calls
	s.RateLimitPeriod = int(c.RateLimit.Period / time.Second)
	return s
}

// AccessMode returns the access mode used when no policy is stored yet.
func (c *Config) AccessMode() access.Mode {
	return access.Mode(c.Bot.AccessMode)
}

// StorageDatabase returns the database backing SQL storage.
func (c *Config) StorageDatabase() (*DatabaseConfig, error) {
	if !c.Storage.IsSQL() {
		return nil, fmt.Errorf("storage backend %q is not sql", c.Storage.Backend)
	}
	db, ok := c.Databases[c.Storage.Database]
	if !ok || db == nil {
		return nil, fmt.Errorf("database %q is not defined", c.Storage.Database)
	}
	return db, nil
}

func modelAllowList(models []string, llm LLMConfig) []string {
	if len(models) == 0 {
		switch llm.Provider {
		case LLMProviderGemini:
			models = append([]string(nil), GeminiModels...)
		default:
			models = append([]string(nil), settings.DefaultModels...)
		}
	}
	if llm.Model != "" && !slices.Contains(models, llm.Model) {
		models = append(models, llm.Model)
	}
	return models
}

func BoolPtr(b bool) *bool {
	return &b
}

func IntPtr(i int) *int {
	return &i
}

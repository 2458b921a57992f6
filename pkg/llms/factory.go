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

package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/chatgate/pkg/config"
)

// New builds the backend for cfg. When src is non-nil the model, system
// prompt and proxy follow the bot settings at call time. Calls are paced
// when cfg.MaxRPS is set.
func New(ctx context.Context, cfg *config.LLMConfig, systemPrompt string, src SettingsReader, opts ...Option) (Backend, error) {
	direct := Route{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		SystemPrompt: systemPrompt,
	}
	route := StaticRoute(direct)
	if src != nil {
		route = SettingsRoute(src, direct)
	}

	base := []Option{
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.Retries(), cfg.RetryDelay),
		WithMaxTokens(cfg.MaxTokens),
	}
	if cfg.Temperature != nil {
		base = append(base, WithTemperature(*cfg.Temperature))
	}
	opts = append(base, opts...)

	var backend Backend
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		backend = NewOpenAI(route, opts...)
	case config.LLMProviderGemini:
		g, err := NewGemini(ctx, cfg.APIKey, route, opts...)
		if err != nil {
			return nil, err
		}
		backend = g
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return NewThrottled(backend, cfg.MaxRPS, cfg.Burst), nil
}

// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
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
	"time"

	"github.com/kadirpekel/chatgate/pkg/settings"
)

type LLMProvider string

const (
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

// DefaultOpenAIBaseURL is the direct OpenAI endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// GeminiModels is the default allow-list for the gemini provider.
var GeminiModels = []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=gemini,default=openai"`

	Model string `yaml:"model,omitempty" json:"model,omitempty" jsonschema:"title=Model,description=Initial model; admins may switch within bot.models"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=Use ${OPENAI_API_KEY} or ${GEMINI_API_KEY}"`

	// BaseURL overrides the direct OpenAI endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL"`

	// UseProxy, ProxyURL and ProxyKey seed the runtime proxy settings.
	UseProxy bool   `yaml:"use_proxy,omitempty" json:"use_proxy,omitempty" jsonschema:"title=Use Proxy"`
	ProxyURL string `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty" jsonschema:"title=Proxy URL"`
	ProxyKey string `yaml:"proxy_key,omitempty" json:"proxy_key,omitempty" jsonschema:"title=Proxy Key"`

	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,minimum=0,maximum=2,default=0.7"`

	// MaxTokens caps the reply length. Zero leaves it to the provider.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"title=Max Tokens,minimum=0"`

	// Timeout bounds one completion call including retries.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,type=string,default=30s"`

	// MaxRetries is the number of HTTP retries on 429 and 5xx.
	// Default: 2
	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"title=Max Retries,minimum=0,default=2"`

	// RetryDelay is the base backoff delay.
	// Default: 1s
	RetryDelay time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" jsonschema:"title=Retry Delay,type=string,default=1s"`

	// MaxRPS paces outbound calls across all users. Zero disables pacing.
	MaxRPS float64 `yaml:"max_rps,omitempty" json:"max_rps,omitempty" jsonschema:"title=Max Requests Per Second,minimum=0"`

	// Burst is the pacing burst size. Default: 1
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty" jsonschema:"title=Burst,minimum=1,default=1"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderGemini:
			c.Model = GeminiModels[0]
		default:
			c.Model = settings.DefaultModel
		}
	}
	if c.APIKey == "" {
		c.APIKey = getAPIKeyFromEnv(c.Provider)
	}
	if c.BaseURL == "" && c.Provider == LLMProviderOpenAI {
		c.BaseURL = DefaultOpenAIBaseURL
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == nil {
		c.MaxRetries = IntPtr(2)
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI:
		if c.APIKey == "" && !c.UseProxy {
			return fmt.Errorf("api_key is required unless use_proxy is set")
		}
	case LLMProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for provider %q", c.Provider)
		}
		if c.UseProxy {
			return fmt.Errorf("use_proxy is only supported for the openai provider")
		}
	default:
		return fmt.Errorf("invalid provider %q (valid: openai, gemini)", c.Provider)
	}

	if c.UseProxy && c.ProxyURL == "" {
		return fmt.Errorf("proxy_url is required when use_proxy is set")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps must be non-negative")
	}
	return nil
}

// Retries returns MaxRetries with its default applied.
func (c *LLMConfig) Retries() int {
	if c.MaxRetries == nil {
		return 2
	}
	return *c.MaxRetries
}

func detectProviderFromEnv() LLMProvider {
	if os.Getenv("OPENAI_API_KEY") == "" && (os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "") {
		return LLMProviderGemini
	}
	return LLMProviderOpenAI
}

func getAPIKeyFromEnv(provider LLMProvider) string {
	switch provider {
	case LLMProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

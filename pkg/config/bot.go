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

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// BotConfig holds the bot-wide defaults.
type BotConfig struct {
	// AdminIDs are the users allowed to change settings in chat.
	AdminIDs []int64 `yaml:"admin_ids,omitempty" json:"admin_ids,omitempty" jsonschema:"title=Admin IDs,description=Platform user IDs with admin rights"`

	// Ordered serializes each user's messages so context appends keep
	// arrival order. Default: true
	Ordered *bool `yaml:"ordered,omitempty" json:"ordered,omitempty" jsonschema:"title=Ordered,default=true"`

	ContextSize      int    `yaml:"context_size,omitempty" json:"context_size,omitempty" jsonschema:"title=Context Size,minimum=1,maximum=50,default=10"`
	DefaultUserLimit int    `yaml:"default_user_limit,omitempty" json:"default_user_limit,omitempty" jsonschema:"title=Default User Limit,minimum=1,maximum=1000,default=50"`
	WelcomeMessage   string `yaml:"welcome_message,omitempty" json:"welcome_message,omitempty" jsonschema:"title=Welcome Message,maxLength=1000"`
	SystemPrompt     string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty" jsonschema:"title=System Prompt"`

	// AccessMode seeds the access policy the first time it is created.
	AccessMode string `yaml:"access_mode,omitempty" json:"access_mode,omitempty" jsonschema:"title=Access Mode,enum=public,enum=whitelist,enum=admin_only,default=public"`

	// Models is the allow-list for the model setting. The configured LLM
	// model is always added.
	Models []string `yaml:"models,omitempty" json:"models,omitempty" jsonschema:"title=Models"`
}

func (c *BotConfig) SetDefaults() {
	if c.Ordered == nil {
		c.Ordered = BoolPtr(true)
	}
	if c.ContextSize == 0 {
		c.ContextSize = settings.DefaultContextSize
	}
	if c.DefaultUserLimit == 0 {
		c.DefaultUserLimit = settings.DefaultUserLimit
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = settings.DefaultWelcome
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = settings.DefaultSystemPrompt
	}
	if c.AccessMode == "" {
		c.AccessMode = string(access.ModePublic)
	}
}

func (c *BotConfig) Validate() error {
	if !access.Mode(c.AccessMode).Valid() {
		return fmt.Errorf("invalid access_mode %q (valid: public, whitelist, admin_only)", c.AccessMode)
	}
	for _, id := range c.AdminIDs {
		if id <= 0 {
			return fmt.Errorf("admin_ids must be positive, got %d", id)
		}
	}
	return nil
}

// IsOrdered reports whether per-user handling is serialized.
func (c *BotConfig) IsOrdered() bool {
	return c.Ordered == nil || *c.Ordered
}

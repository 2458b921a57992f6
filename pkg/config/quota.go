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
	"time"
)

// QuotaConfig configures the daily quota reset.
type QuotaConfig struct {
	// ResetEnabled runs the midnight reset. Default: true
	ResetEnabled *bool `yaml:"reset_enabled,omitempty" json:"reset_enabled,omitempty" jsonschema:"title=Reset Enabled,default=true"`

	// Timezone names the IANA zone whose midnight triggers the reset.
	// Default: Local
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty" jsonschema:"title=Timezone,default=Local"`
}

func (c *QuotaConfig) SetDefaults() {
	if c.ResetEnabled == nil {
		c.ResetEnabled = BoolPtr(true)
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

func (c *QuotaConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func (c *QuotaConfig) IsResetEnabled() bool {
	return c.ResetEnabled == nil || *c.ResetEnabled
}

// Location resolves Timezone, falling back to time.Local.
func (c *QuotaConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

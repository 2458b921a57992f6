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

// ServerConfig configures the HTTP admin API and the web chat transport.
//
//	server:
//	  enabled: true
//	  address: ":8080"
//	  auth:
//	    enabled: true
//	    secret: ${CHATGATE_JWT_SECRET}
type ServerConfig struct {
	// Enabled starts the HTTP server with `chatgate serve`. Default: false
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// Address to listen on. Default: :8080
	Address string `yaml:"address,omitempty" json:"address,omitempty" jsonschema:"title=Address,default=:8080"`

	Auth AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty" jsonschema:"title=Auth"`

	// WebSocket enables GET /v1/chat/ws. Default: true
	WebSocket *bool `yaml:"websocket,omitempty" json:"websocket,omitempty" jsonschema:"title=WebSocket,default=true"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty" jsonschema:"title=Shutdown Timeout,type=string,default=10s"`
}

// AuthConfig configures bearer token authentication for the admin API.
// Tokens are HS256 JWTs signed with Secret.
//
// Authentication is disabled by default. When enabled, every route except
// /health requires:
//
//	Authorization: Bearer <token>
type AuthConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled"`

	// Secret is the HMAC key. Required when enabled, at least 32 bytes.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty" jsonschema:"title=Secret,minLength=32"`

	// Issuer is the expected iss claim. Default: chatgate
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty" jsonschema:"title=Issuer,default=chatgate"`

	// Audience is the expected aud claim. Default: chatgate-admin
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" jsonschema:"title=Audience,default=chatgate-admin"`

	// TokenTTL is the lifetime of tokens minted by `chatgate token`. Default: 24h
	TokenTTL time.Duration `yaml:"token_ttl,omitempty" json:"token_ttl,omitempty" jsonschema:"title=Token TTL,type=string,default=24h"`
}

const minSecretLength = 32

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.WebSocket == nil {
		c.WebSocket = BoolPtr(true)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	c.Auth.SetDefaults()
}

func (c *ServerConfig) Validate() error {
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be non-negative")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// IsWebSocketEnabled reports whether the websocket chat route is mounted.
func (c *ServerConfig) IsWebSocketEnabled() bool {
	return c.WebSocket == nil || *c.WebSocket
}

func (c *AuthConfig) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = "chatgate"
	}
	if c.Audience == "" {
		c.Audience = "chatgate-admin"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
}

func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("secret must be at least %d bytes when auth is enabled", minSecretLength)
	}
	if c.TokenTTL < 0 {
		return fmt.Errorf("token_ttl must be non-negative")
	}
	return nil
}

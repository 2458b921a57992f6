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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/chatgate/pkg/auth"
	"github.com/kadirpekel/chatgate/pkg/runtime"
)

// ResetQuotasCmd resets every user's daily counter once, outside the
// scheduler. Useful with SQL storage shared by a running instance.
type ResetQuotasCmd struct{}

func (c *ResetQuotasCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if !cfg.Storage.IsSQL() {
		slog.Warn("Storage is in memory; the reset only affects this process")
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.Quota.ResetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset quotas: %w", err)
	}
	rt.Metrics.RecordQuotaReset(ctx, n)
	fmt.Printf("Reset quotas for %d users\n", n)
	return nil
}

// TokenCmd mints an admin bearer token for the HTTP API.
type TokenCmd struct {
	Subject string        `arg:"" help:"Token subject, usually an operator name."`
	TTL     time.Duration `name:"ttl" help:"Token lifetime (default: server.auth.token_ttl)."`
}

func (c *TokenCmd) Run(cli *CLI) error {
	cfg, loader, err := cli.loadConfig(context.Background())
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if !cfg.Server.Auth.Enabled {
		return fmt.Errorf("server.auth is not enabled")
	}

	validator, err := runtime.NewValidator(cfg.Server.Auth)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = cfg.Server.Auth.TokenTTL
	}
	token, err := validator.Issue(c.Subject, auth.RoleAdmin, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

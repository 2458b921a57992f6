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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/llms"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	// Config is the configuration file path (positional argument)
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH" type:"path"`

	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (with defaults applied and env vars resolved)."`
	Ping        bool   `help:"Also ping the configured LLM endpoint."`
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type validationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := config.LoadConfigFile(ctx, c.Config)
	if err != nil {
		return reportFailure(os.Stdout, os.Stderr, c.Format, c.Config, "load", err)
	}
	defer loader.Close()

	if c.Ping {
		if err := pingBackend(ctx, cfg); err != nil {
			return reportFailure(os.Stdout, os.Stderr, c.Format, c.Config, "ping", err)
		}
	}

	if c.PrintConfig {
		return printExpandedConfig(os.Stdout, c.Format, cfg)
	}
	printSuccess(os.Stdout, c.Format, c.Config)
	return nil
}

// pingBackend builds the configured backend and pings it when supported.
func pingBackend(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	backend, err := llms.New(ctx, &cfg.LLM, cfg.Bot.SystemPrompt, nil)
	if err != nil {
		return err
	}
	defer backend.Close()

	p, ok := backend.(llms.Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func reportFailure(stdout, stderr io.Writer, format, file, kind string, err error) error {
	switch format {
	case "json":
		writeJSONResult(stdout, validationResult{File: file, Errors: []ValidationError{{Type: kind, Message: err.Error()}}})
	case "verbose":
		fmt.Fprintf(stderr, "Configuration Validation Failed\n")
		fmt.Fprintf(stderr, "===============================\n\n")
		fmt.Fprintf(stderr, "File:    %s\n", file)
		fmt.Fprintf(stderr, "Stage:   %s\n", kind)
		fmt.Fprintf(stderr, "Error:   %s\n", err.Error())
	default: // compact
		fmt.Fprintf(stderr, "%s: %s error: %s\n", file, kind, err.Error())
	}
	return fmt.Errorf("config %s failed", kind)
}

func printSuccess(w io.Writer, format, file string) {
	switch format {
	case "json":
		writeJSONResult(w, validationResult{Valid: true, File: file})
	case "verbose":
		fmt.Fprintf(w, "Configuration Validation Successful\n")
		fmt.Fprintf(w, "===================================\n\n")
		fmt.Fprintf(w, "File:   %s\n", file)
		fmt.Fprintf(w, "Status: OK Valid\n")
	default: // compact
		fmt.Fprintf(w, "%s: valid\n", file)
	}
}

// printExpandedConfig prints the config with defaults applied. Secrets are
// printed as resolved, so the output should not be shared.
func printExpandedConfig(w io.Writer, format string, cfg *config.Config) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func writeJSONResult(w io.Writer, res validationResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

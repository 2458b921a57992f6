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

// Command chatgate runs the chat front-end.
//
// Usage:
//
//	chatgate serve --config chatgate.yaml
//	chatgate chat --user-id 1
//	chatgate validate chatgate.yaml
package main

import (
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/chatgate"
	"github.com/kadirpekel/chatgate/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Show version information."`
	Serve       ServeCmd       `cmd:"" help:"Start the admin API and background jobs."`
	Chat        ChatCmd        `cmd:"" help:"Chat with the bot from the terminal."`
	Validate    ValidateCmd    `cmd:"" help:"Validate configuration file."`
	Schema      SchemaCmd      `cmd:"" help:"Generate JSON Schema for the configuration."`
	ResetQuotas ResetQuotasCmd `cmd:"" name:"reset-quotas" help:"Reset every user's daily quota."`
	Token       TokenCmd       `cmd:"" help:"Mint an admin API token."`

	Config          string   `short:"c" help:"Path to config file (or key for remote providers)." type:"path"`
	ConfigType      string   `name:"config-type" help:"Config provider: file, consul, etcd, zookeeper." default:"file" enum:"file,consul,etcd,zookeeper"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints of the remote config store." sep:","`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, json)."`

	logCleanup func()
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("chatgate %s\n", chatgate.GetVersion())
	return nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chatgate"),
		kong.Description("Rate-limited, quota-aware chat front-end for LLM backends."),
		kong.UsageOnError(),
	)

	if err := cli.initLogger(nil); err != nil {
		ctx.FatalIfErrorf(err)
	}
	defer cli.closeLog()

	err := ctx.Run(&cli)
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
	}
	ctx.FatalIfErrorf(err)
}

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
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/kadirpekel/chatgate/pkg/bot"
	"github.com/kadirpekel/chatgate/pkg/runtime"
)

// ChatCmd talks to the bot from the terminal as a single user. Commands such
// as /start, /status and /admin work as they do on any other transport.
type ChatCmd struct {
	UserID    int64  `name:"user-id" help:"User ID to chat as (default: first admin, else 1)."`
	FirstName string `name:"first-name" help:"First name shown to the bot." default:"Console"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	userID := c.UserID
	if userID == 0 {
		userID = 1
		if len(cfg.Bot.AdminIDs) > 0 {
			userID = cfg.Bot.AdminIDs[0]
		}
	}

	sender := bot.NewConsoleSender(os.Stdout)
	var prompt func(sent bool)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("Chatting as user %d. Type /help for commands, exit to quit.\n\n", userID)
		prompt = replyPrompt(ctx, sender)
	}
	source := bot.NewConsoleSource(os.Stdin, userID, c.FirstName, prompt)

	runner, err := bot.NewRunner(source, sender, rt.Router, bot.WithOrdered(true))
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// replyPrompt prints "> " before each read. After a delivered line it waits
// for the reply so answers and prompts do not interleave.
func replyPrompt(ctx context.Context, sender *bot.ConsoleSender) func(sent bool) {
	return func(sent bool) {
		if sent {
			select {
			case <-sender.Done:
			case <-ctx.Done():
				return
			}
		}
		fmt.Print("> ")
	}
}

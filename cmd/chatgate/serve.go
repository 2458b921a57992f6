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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/chatgate"
	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/runtime"
)

// ServeCmd runs the admin API together with the quota reset scheduler, the
// limiter sweeper and the config watcher.
type ServeCmd struct {
	Address string `help:"Listen address; enables the HTTP server when set." placeholder:"ADDR"`
	Watch   bool   `help:"Watch the config source and apply changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	var rt *runtime.Runtime
	cfg, loader, err := cli.loadConfig(ctx, config.WithOnChange(func(updated *config.Config) {
		if rt == nil {
			return
		}
		if err := rt.Reload(ctx, updated); err != nil {
			slog.Error("Failed to apply config change", "error", err)
		}
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Address != "" {
		cfg.Server.Enabled = true
		cfg.Server.Address = c.Address
	}

	rt, err = runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("Shutdown finished with errors", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv, err := rt.Server()
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	} else {
		slog.Info("HTTP server disabled; running background jobs only")
	}

	g.Go(func() error { return rt.RunScheduler(gctx) })
	g.Go(func() error { return rt.RunSweeper(gctx) })

	if c.Watch && loader != nil {
		g.Go(func() error { return loader.Watch(gctx) })
	}

	slog.Info("chatgate started", "version", chatgate.GetVersion().Version)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("chatgate stopped")
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			slog.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

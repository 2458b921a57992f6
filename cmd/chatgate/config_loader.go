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

	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/config/provider"
)

// loadConfig loads the configuration named by the global flags. Without
// --config the environment-only mode is used and the returned loader is nil.
func (cli *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("Loaded configuration from environment")
		return cfg, nil, nil
	}

	typ, err := provider.ParseType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
		Type:      typ,
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoints,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config from %s: %w", cli.Config, err)
	}

	if err := cli.initLogger(&cfg.Logger); err != nil {
		loader.Close()
		return nil, nil, err
	}
	slog.Debug("Loaded configuration", "source", cli.Config, "provider", typ)
	return cfg, loader, nil
}

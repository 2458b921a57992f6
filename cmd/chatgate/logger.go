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
	"fmt"
	"os"

	"github.com/kadirpekel/chatgate/pkg/config"
	"github.com/kadirpekel/chatgate/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "simple"
	// DefaultLogLevel is the default log level
	DefaultLogLevel = "info"
)

type logSettings struct {
	Level  string
	File   string
	Format string
}

// resolveLogSettings picks each value by priority: CLI flag, environment,
// config file logger section, default.
func resolveLogSettings(flags logSettings, cfg *config.LoggerConfig) logSettings {
	var fromCfg logSettings
	if cfg != nil {
		fromCfg = logSettings{Level: cfg.Level, File: cfg.File, Format: cfg.Format}
	}
	return logSettings{
		Level:  firstNonEmpty(flags.Level, os.Getenv(LogLevelEnvVar), fromCfg.Level, DefaultLogLevel),
		File:   firstNonEmpty(flags.File, os.Getenv(LogFileEnvVar), fromCfg.File),
		Format: firstNonEmpty(flags.Format, os.Getenv(LogFormatEnvVar), fromCfg.Format, DefaultLogFormat),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// initLogger (re)initializes the default logger. It is called once at
// startup and again once a config file has been loaded.
func (cli *CLI) initLogger(cfg *config.LoggerConfig) error {
	s := resolveLogSettings(logSettings{Level: cli.LogLevel, File: cli.LogFile, Format: cli.LogFormat}, cfg)

	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if s.File != "" {
		file, cleanupFn, err := logger.OpenLogFile(s.File)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(level, output, s.Format)
	cli.closeLog()
	cli.logCleanup = cleanup
	return nil
}

func (cli *CLI) closeLog() {
	if cli.logCleanup != nil {
		cli.logCleanup()
		cli.logCleanup = nil
	}
}

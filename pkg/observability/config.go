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

package observability

import (
	"fmt"
	"time"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config is the observability section of the chatgate config.
type Config struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint on the admin server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"default=false"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"default=/metrics"`
}

// TracingConfig controls span export. SamplingRate is the kept fraction of
// root traces; child spans follow their parent.
type TracingConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"default=false"`
	Exporter     string        `yaml:"exporter,omitempty" json:"exporter,omitempty" jsonschema:"enum=otlp,enum=stdout,default=otlp"`
	Endpoint     string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty" jsonschema:"default=localhost:4317"`
	SamplingRate float64       `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty" jsonschema:"minimum=0,maximum=1,default=1"`
	ServiceName  string        `yaml:"service_name,omitempty" json:"service_name,omitempty" jsonschema:"default=chatgate"`
	Insecure     *bool         `yaml:"insecure,omitempty" json:"insecure,omitempty" jsonschema:"default=true"`
	Timeout      time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	c.Tracing.SetDefaults()
}

func (c *Config) Validate() error {
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics: path is required when metrics are enabled")
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterOTLP
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.Insecure == nil {
		on := true
		c.Insecure = &on
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate only checks an enabled tracer.
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate %g is outside [0, 1]", c.SamplingRate)
	}
	switch c.Exporter {
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the otlp exporter")
		}
	case ExporterStdout:
	default:
		return fmt.Errorf("unknown exporter %q, want otlp or stdout", c.Exporter)
	}
	return nil
}

func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}

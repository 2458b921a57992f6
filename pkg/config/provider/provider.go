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

// Package provider reads raw configuration bytes from a file or a remote
// key-value store and signals when they change.
package provider

import (
	"context"
	"fmt"
	"time"
)

type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// DialTimeout bounds the initial connection to a remote store.
const DialTimeout = 10 * time.Second

func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the config changes.
	// The channel is closed when ctx is cancelled. A nil channel means
	// watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

type ProviderConfig struct {
	// Type selects the backing store.
	Type Type

	// Path is a file path or a key path.
	Path string

	// Endpoints for remote providers.
	Endpoints []string
}

// New creates the provider selected by opts. Remote providers fall back to
// the store's conventional local endpoint.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	case TypeConsul:
		return NewConsulProvider(firstOr(opts.Endpoints, "localhost:8500"), opts.Path)
	case TypeEtcd:
		return NewEtcdProvider(orDefault(opts.Endpoints, "localhost:2379"), opts.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(orDefault(opts.Endpoints, "localhost:2181"), opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}

func orDefault(endpoints []string, fallback string) []string {
	if len(endpoints) == 0 {
		return []string{fallback}
	}
	return endpoints
}

func firstOr(endpoints []string, fallback string) string {
	if len(endpoints) == 0 {
		return fallback
	}
	return endpoints[0]
}

// notify performs a non-blocking send so a pending change is never queued twice.
func notify(ch chan<- struct{}) bool {
	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

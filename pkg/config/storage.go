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

import "fmt"

// StorageBackend identifies where persistent state lives.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendSQL    StorageBackend = "sql"
)

// StorageConfig selects the backend for users, contexts, settings and access
// control.
//
//	storage:
//	  backend: sql
//	  database: main
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,enum=memory,enum=sql,default=memory"`

	// Database references an entry under databases. Required for sql.
	Database string `yaml:"database,omitempty" json:"database,omitempty" jsonschema:"title=Database"`
}

func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageBackendMemory
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageBackendMemory:
	case StorageBackendSQL:
		if c.Database == "" {
			return fmt.Errorf("database is required for the sql backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sql)", c.Backend)
	}
	return nil
}

func (c *StorageConfig) IsSQL() bool {
	return c.Backend == StorageBackendSQL
}

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

package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/chatgate/pkg/sqlstore"
)

// Store persists a single BotSettings document.
type Store interface {
	// GetBotSettings returns ErrNotFound until the first update.
	GetBotSettings(ctx context.Context) (*BotSettings, error)
	UpdateBotSettings(ctx context.Context, s *BotSettings) error
}

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu       sync.RWMutex
	settings *BotSettings
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GetBotSettings(ctx context.Context) (*BotSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, ErrNotFound
	}
	cp := *m.settings
	return &cp, nil
}

func (m *MemoryStore) UpdateBotSettings(ctx context.Context, s *BotSettings) error {
	cp := *s
	m.mu.Lock()
	m.settings = &cp
	m.mu.Unlock()
	return nil
}

const createSettingsSchemaSQL = `
CREATE TABLE IF NOT EXISTS bot_settings (
    id INTEGER PRIMARY KEY,
    settings_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore keeps settings as a JSON document in a single row.
type SQLStore struct {
	db *sqlstore.DB
}

// NewSQLStore creates the schema if needed.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	d, err := sqlstore.New(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(createSettingsSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStore{db: d}, nil
}

func (s *SQLStore) GetBotSettings(ctx context.Context) (*BotSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT settings_json FROM bot_settings WHERE id = ?`), 1).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var out BotSettings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &out, nil
}

func (s *SQLStore) UpdateBotSettings(ctx context.Context, bs *BotSettings) error {
	raw, err := json.Marshal(bs)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	query := s.db.Upsert("bot_settings", []string{"id"}, []string{"settings_json", "updated_at"})
	if _, err := s.db.ExecContext(ctx, query, 1, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)

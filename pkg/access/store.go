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

package access

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

// History is capped: once it grows past historyCap it is cut back to the
// newest historyKeep entries.
const (
	historyCap  = 100
	historyKeep = 50
)

// Store persists the access policy and its audit history.
type Store interface {
	// GetControl returns ErrNotFound until the first save.
	GetControl(ctx context.Context) (*Control, error)
	SaveControl(ctx context.Context, c *Control) error
	AddHistory(ctx context.Context, r HistoryRecord) error
	// History returns up to limit records, newest first.
	History(ctx context.Context, limit int) ([]HistoryRecord, error)
}

// MemoryStore keeps the policy in process.
type MemoryStore struct {
	mu      sync.RWMutex
	control *Control
	history []HistoryRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GetControl(ctx context.Context) (*Control, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.control == nil {
		return nil, ErrNotFound
	}
	return m.control.clone(), nil
}

func (m *MemoryStore) SaveControl(ctx context.Context, c *Control) error {
	m.mu.Lock()
	m.control = c.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AddHistory(ctx context.Context, r HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, r)
	if len(m.history) > historyCap {
		m.history = append([]HistoryRecord{}, m.history[len(m.history)-historyKeep:]...)
	}
	return nil
}

func (m *MemoryStore) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]HistoryRecord, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

const createAccessControlSchemaSQL = `
CREATE TABLE IF NOT EXISTS access_control (
    id INTEGER PRIMARY KEY,
    control_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createAccessHistorySchemaSQL = `
CREATE TABLE IF NOT EXISTS access_history (
    id VARCHAR(64) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    action TEXT NOT NULL,
    admin_id BIGINT NOT NULL
)`

const createAccessHistoryIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_access_history_created_at ON access_history(created_at)`

// SQLStore keeps the policy as a JSON row plus an access_history table.
type SQLStore struct {
	db *sqlstore.DB
}

// NewSQLStore creates the schema if needed.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	d, err := sqlstore.New(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(createAccessControlSchemaSQL, createAccessHistorySchemaSQL, createAccessHistoryIndexSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStore{db: d}, nil
}

func (s *SQLStore) GetControl(ctx context.Context) (*Control, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT control_json FROM access_control WHERE id = ?`), 1).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access control: %w", err)
	}
	var c Control
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access control: %w", err)
	}
	return c.clone(), nil
}

func (s *SQLStore) SaveControl(ctx context.Context, c *Control) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal access control: %w", err)
	}
	query := s.db.Upsert("access_control", []string{"id"}, []string{"control_json", "updated_at"})
	if _, err := s.db.ExecContext(ctx, query, 1, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save access control: %w", err)
	}
	return nil
}

func (s *SQLStore) AddHistory(ctx context.Context, r HistoryRecord) error {
	insert := s.db.Rebind(`INSERT INTO access_history (id, created_at, action, admin_id) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, insert, r.ID, r.Timestamp.UTC(), r.Action, r.AdminID); err != nil {
		return fmt.Errorf("failed to add history record: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_history`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count history: %w", err)
	}
	if count <= historyCap {
		return nil
	}

	recent, err := s.History(ctx, historyKeep)
	if err != nil {
		return err
	}
	cutoff := recent[len(recent)-1].Timestamp.UTC()
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM access_history WHERE created_at < ?`), cutoff); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = historyCap
	}
	query := s.db.Rebind(`SELECT id, created_at, action, admin_id FROM access_history ORDER BY created_at DESC, id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Action, &r.AdminID); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)

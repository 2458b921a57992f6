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

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/chatgate/pkg/sqlstore"
)

const createContextsSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_contexts (
    user_id BIGINT PRIMARY KEY,
    max_messages INTEGER NOT NULL,
    messages_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore persists contexts as one JSON document per user.
type SQLStore struct {
	db *sqlstore.DB
}

// NewSQLStore creates the schema if needed.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	d, err := sqlstore.New(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(createContextsSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStore{db: d}, nil
}

// Get returns the conversation context for userID or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, userID int64) (*Context, error) {
	query := s.db.Rebind(`SELECT max_messages, messages_json FROM user_contexts WHERE user_id = ?`)

	var (
		maxMessages int
		raw         string
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&maxMessages, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load context for user %d: %w", userID, err)
	}

	c := NewContext(userID, maxMessages)
	if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context for user %d: %w", userID, err)
	}
	return c, nil
}

// Save stores c, replacing any previous context for its user.
func (s *SQLStore) Save(ctx context.Context, c *Context) error {
	raw, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	query := s.db.Upsert("user_contexts", []string{"user_id"}, []string{"max_messages", "messages_json", "updated_at"})
	if _, err := s.db.ExecContext(ctx, query, c.UserID, c.MaxMessages, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save context for user %d: %w", c.UserID, err)
	}
	return nil
}

// Clear empties the user's messages.
func (s *SQLStore) Clear(ctx context.Context, userID int64) error {
	query := s.db.Rebind(`UPDATE user_contexts SET messages_json = ?, updated_at = ? WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, "[]", time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("failed to clear context for user %d: %w", userID, err)
	}
	return nil
}

// Delete removes the user's context.
func (s *SQLStore) Delete(ctx context.Context, userID int64) error {
	query := s.db.Rebind(`DELETE FROM user_contexts WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete context for user %d: %w", userID, err)
	}
	return nil
}

// All returns every stored context ordered by user ID.
func (s *SQLStore) All(ctx context.Context) ([]*Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, max_messages, messages_json FROM user_contexts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		var (
			userID      int64
			maxMessages int
			raw         string
		)
		if err := rows.Scan(&userID, &maxMessages, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		c := NewContext(userID, maxMessages)
		if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context for user %d: %w", userID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)

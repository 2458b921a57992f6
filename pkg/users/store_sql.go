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

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/chatgate/pkg/sqlstore"
)

const createUsersSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    requests_limit INTEGER NOT NULL,
    requests_used INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_request_at TIMESTAMP NULL
)`

const userColumns = `user_id, first_name, last_name, requests_limit, requests_used, is_active, created_at, last_request_at`

// SQLStore keeps profiles in a users table. Counter updates are single
// statements, so they stay atomic without application locks.
type SQLStore struct {
	db *sqlstore.DB
}

// NewSQLStore creates the schema if needed.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	d, err := sqlstore.New(db, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.InitSchema(createUsersSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStore{db: d}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		p         Profile
		first     sql.NullString
		last      sql.NullString
		lastReqAt sql.NullTime
	)
	if err := row.Scan(&p.UserID, &first, &last, &p.RequestsLimit, &p.RequestsUsed, &p.IsActive, &p.CreatedAt, &lastReqAt); err != nil {
		return nil, err
	}
	p.FirstName = first.String
	p.LastName = last.String
	if lastReqAt.Valid {
		t := lastReqAt.Time
		p.LastRequestAt = &t
	}
	return &p, nil
}

// Get returns the profile for userID or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, userID int64) (*Profile, error) {
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE user_id = ?`)
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return p, nil
}

// Create inserts a new profile, or returns ErrExists if the user is known.
func (s *SQLStore) Create(ctx context.Context, p *Profile) error {
	if _, err := s.Get(ctx, p.UserID); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := s.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		p.UserID, p.FirstName, p.LastName, p.RequestsLimit, p.RequestsUsed, p.IsActive, createdAt, nullTime(p.LastRequestAt))
	if err != nil {
		return fmt.Errorf("failed to create user %d: %w", p.UserID, err)
	}
	return nil
}

// Update replaces the stored profile.
func (s *SQLStore) Update(ctx context.Context, p *Profile) error {
	query := s.db.Rebind(`UPDATE users SET first_name = ?, last_name = ?, requests_limit = ?, requests_used = ?, is_active = ?, last_request_at = ? WHERE user_id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		p.FirstName, p.LastName, p.RequestsLimit, p.RequestsUsed, p.IsActive, nullTime(p.LastRequestAt), p.UserID)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", p.UserID, err)
	}
	return s.requireAffected(ctx, res, p.UserID)
}

// IncrementRequests adds one to the user's request counter and returns the new value.
func (s *SQLStore) IncrementRequests(ctx context.Context, userID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := s.db.Rebind(`UPDATE users SET requests_used = requests_used + 1, last_request_at = ? WHERE user_id = ?`)
	res, err := tx.ExecContext(ctx, update, time.Now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment requests for user %d: %w", userID, err)
	}
	// An increment always changes an existing row, so zero means missing.
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	var used int
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT requests_used FROM users WHERE user_id = ?`), userID).Scan(&used); err != nil {
		return 0, fmt.Errorf("failed to read requests for user %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return used, nil
}

// ResetRequests zeroes the user's request counter.
func (s *SQLStore) ResetRequests(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET requests_used = 0 WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to reset requests for user %d: %w", userID, err)
	}
	return s.requireAffected(ctx, res, userID)
}

// SetLimit sets the user's request limit.
func (s *SQLStore) SetLimit(ctx context.Context, userID int64, limit int) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET requests_limit = ? WHERE user_id = ?`), limit, userID)
	if err != nil {
		return fmt.Errorf("failed to set limit for user %d: %w", userID, err)
	}
	return s.requireAffected(ctx, res, userID)
}

// GetAll returns every profile ordered by user ID.
func (s *SQLStore) GetAll(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResetAll zeroes every non-zero request counter and returns how many it reset.
func (s *SQLStore) ResetAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET requests_used = 0 WHERE requests_used <> 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset all requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// requireAffected reports ErrNotFound when an update touched no row. Drivers
// that count changed rather than matched rows (MySQL without clientFoundRows)
// return 0 for a no-op update, so a zero count is confirmed with a lookup.
func (s *SQLStore) requireAffected(ctx context.Context, res sql.Result, userID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM users WHERE user_id = ?`), userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*SQLStore)(nil)

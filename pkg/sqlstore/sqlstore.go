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

// Package sqlstore holds the dialect helpers shared by the SQL-backed stores.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported dialects.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// DB pairs a connection pool with its SQL dialect.
type DB struct {
	*sql.DB
	Dialect string
}

// New validates dialect and wraps db.
func New(db *sql.DB, dialect string) (*DB, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case Postgres, MySQL, SQLite, "sqlite3":
		if dialect == "sqlite3" {
			dialect = SQLite
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// Rebind converts ? placeholders for the postgres dialect.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	return convertToPostgresPlaceholders(query)
}

// Upsert renders an insert-or-update statement keyed on keyCols.
func (d *DB) Upsert(table string, keyCols, valueCols []string) string {
	cols := append(append([]string{}, keyCols...), valueCols...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)

	sets := make([]string, len(valueCols))
	switch d.Dialect {
	case MySQL:
		for i, c := range valueCols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	default:
		for i, c := range valueCols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return d.Rebind(insert + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET ", strings.Join(keyCols, ", ")) + strings.Join(sets, ", "))
	}
}

// InitSchema executes each statement separately for SQLite compatibility.
func (d *DB) InitSchema(statements ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range statements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString(fmt.Sprintf("$%d", paramNum))
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

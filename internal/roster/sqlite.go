//go:build sqlite
// +build sqlite

package roster

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if raw := strings.TrimSpace(cfg.BusyTimeout); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
		}
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (map[int64]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, username, status FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := map[int64]User{}
	for rows.Next() {
		var u User
		var username sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &username, &u.Status); err != nil {
			return nil, err
		}
		u.Username = username.String
		if u.Status == "" {
			u.Status = StatusActive
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// Save rewrites the whole table in one transaction, matching the wholesale
// rewrite semantics of the file driver.
func (s *sqliteStore) Save(ctx context.Context, users map[int64]User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return err
	}
	for _, u := range users {
		var username any
		if strings.TrimSpace(u.Username) != "" {
			username = u.Username
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users(id, name, username, status) VALUES(?,?,?,?)`,
			u.ID, u.Name, username, string(u.Status),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

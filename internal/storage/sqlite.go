//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "mcwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
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
	// SQLite prefers a single writer; all job mutations serialize here.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
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

// EnsureExists is satisfied by the schema migration at open time.
func (s *sqliteStore) EnsureExists(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) SaveJobs(ctx context.Context, partial Jobs) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(partial) == 0 {
		return nil
	}
	for k := range partial {
		if !ValidKind(k) {
			return fmt.Errorf("save: invalid job kind %q", string(k))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for kind, recs := range partial {
		for id, rec := range recs {
			b, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("save: marshal %s/%s: %w", kind, id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO jobs(kind, id, payload) VALUES(?,?,?)
				 ON CONFLICT(kind, id) DO UPDATE SET payload=excluded.payload`,
				string(kind), id, string(b),
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadJobs(ctx context.Context) (Jobs, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, payload FROM jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := Jobs{}
	for rows.Next() {
		var kindStr, id, payload string
		if err := rows.Scan(&kindStr, &id, &payload); err != nil {
			return nil, err
		}
		kind := Kind(kindStr)
		if !ValidKind(kind) {
			s.log.Warn("dropping unknown job category", logx.String("category", kindStr), logx.String("id", id))
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			s.log.Warn("dropping malformed job record", logx.String("category", kindStr), logx.String("id", id), logx.Err(err))
			continue
		}
		if err := rec.Validate(kind); err != nil {
			s.log.Warn("dropping invalid job record", logx.String("category", kindStr), logx.String("id", id), logx.Err(err))
			continue
		}
		if out[kind] == nil {
			out[kind] = map[string]Record{}
		}
		out[kind][id] = rec
	}
	return out, rows.Err()
}

func (s *sqliteStore) RemoveJob(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(id) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Compact(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	return err
}

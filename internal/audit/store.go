// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package audit persists sandbox violations to a local sqlite database
// so they survive host restarts.
package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/vesselrun/vessel/internal/sandbox"
)

// Compile-time interface check.
var _ sandbox.ViolationSink = (*Store)(nil)

// Store is a sqlite-backed violation log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	errb := oops.Code("AUDIT_OPEN_FAILED").With("path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errb.Wrapf(err, "cannot create audit directory")
	}

	migrator, err := NewMigrator(path)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errb.Wrapf(err, "cannot open audit database")
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close() //nolint:errcheck // pragma error takes precedence
		return nil, errb.Wrapf(err, "cannot enable WAL")
	}

	return &Store{db: db}, nil
}

// RecordViolation persists one violation.
func (s *Store) RecordViolation(ctx context.Context, v sandbox.Violation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violations (id, time_ms, plugin, kind, severity, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Time.UnixMilli(), v.Plugin, string(v.Kind), string(v.Severity), v.Detail)
	if err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").With("violation", v.ID).Wrap(err)
	}
	return nil
}

// Filter narrows a violation query. Zero values match everything.
type Filter struct {
	Plugin string
	Since  time.Time
	Limit  int
}

// Violations returns persisted violations newest first.
func (s *Store) Violations(ctx context.Context, f Filter) ([]sandbox.Violation, error) {
	query := `SELECT id, time_ms, plugin, kind, severity, detail FROM violations WHERE 1=1`
	var args []any
	if f.Plugin != "" {
		query += ` AND plugin = ?`
		args = append(args, f.Plugin)
	}
	if !f.Since.IsZero() {
		query += ` AND time_ms >= ?`
		args = append(args, f.Since.UnixMilli())
	}
	query += ` ORDER BY time_ms DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("AUDIT_READ_FAILED").Wrap(err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []sandbox.Violation
	for rows.Next() {
		var (
			v      sandbox.Violation
			timeMs int64
			kind   string
			sev    string
		)
		if err := rows.Scan(&v.ID, &timeMs, &v.Plugin, &kind, &sev, &v.Detail); err != nil {
			return nil, oops.Code("AUDIT_READ_FAILED").Wrap(err)
		}
		v.Time = time.UnixMilli(timeMs).UTC()
		v.Kind = sandbox.ViolationKind(kind)
		v.Severity = sandbox.Severity(sev)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_READ_FAILED").Wrap(err)
	}
	return out, nil
}

// Count returns the number of persisted violations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations`).Scan(&n); err != nil {
		return 0, oops.Code("AUDIT_READ_FAILED").Wrap(err)
	}
	return n, nil
}

// Purge deletes violations older than the cutoff and reports how many
// rows were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM violations WHERE time_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, oops.Code("AUDIT_PURGE_FAILED").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("AUDIT_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("AUDIT_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

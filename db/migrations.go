package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsGlobPattern = "migrations/*.sql"
	// Stable advisory lock key so two instances never migrate at once.
	migrationsAdvisoryLockID int64 = 7342019855107460881
)

type migration struct {
	version  string
	checksum string
	sql      string
}

func loadMigrations() ([]migration, error) {
	paths, err := fs.Glob(migrationsFS, migrationsGlobPattern)
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(paths)

	out := make([]migration, 0, len(paths))
	for _, path := range paths {
		raw, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		sum := sha256.Sum256(raw)
		out = append(out, migration{
			version:  filepath.Base(path),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(raw),
		})
	}
	return out, nil
}

// Migrate applies the embedded schema in filename order, recording each file
// in schema_migrations. A file whose checksum changed after being applied is
// an error.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationsAdvisoryLockID); err != nil {
		return fmt.Errorf("acquire migrations advisory lock: %w", err)
	}
	defer func() {
		_, _ = p.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationsAdvisoryLockID)
	}()

	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied string
		err := p.db.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, m.version).Scan(&applied)
		switch {
		case err == nil:
			if !strings.EqualFold(applied, m.checksum) {
				return fmt.Errorf("migration %s checksum mismatch (db=%s file=%s)", m.version, applied, m.checksum)
			}
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check schema_migrations for %s: %w", m.version, err)
		}

		if err := p.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresDB) apply(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx for %s: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("execute migration %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum, applied_at) VALUES ($1, $2, NOW())`,
		m.version, m.checksum,
	); err != nil {
		return fmt.Errorf("record schema_migrations row for %s: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return nil
}

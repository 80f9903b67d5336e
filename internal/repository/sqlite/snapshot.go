package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Christian112b/InonicApp/pkg/database"
	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const dbSystem = "sqlite"

const (
	getStmt    = `SELECT data FROM snapshots WHERE key = ?`
	upsertStmt = `INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	deleteStmt = `DELETE FROM snapshots WHERE key = ?`
)

// SnapshotStore implements repository.SnapshotStore on a local SQLite file.
type SnapshotStore struct {
	db *sqlx.DB
}

// Migrate creates the snapshot schema.
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, db, sub, logger)
}

// NewSnapshotStore wraps an already migrated database.
func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Get retrieves the snapshot under key.
func (s *SnapshotStore) Get(ctx context.Context, key string) (data []byte, err error) {
	ctx, end := database.TraceQuery(ctx, dbSystem, "GetSnapshot", getStmt)
	defer func() { end(err) }()

	if err = s.db.GetContext(ctx, &data, getStmt, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("snapshot", key)
		}
		return nil, fmt.Errorf("sqlite get snapshot: %w", err)
	}
	return data, nil
}

// Put upserts data under key.
func (s *SnapshotStore) Put(ctx context.Context, key string, data []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, dbSystem, "PutSnapshot", upsertStmt)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, upsertStmt, key, data); err != nil {
		return fmt.Errorf("sqlite put snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot under key.
func (s *SnapshotStore) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, dbSystem, "DeleteSnapshot", deleteStmt)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, deleteStmt, key); err != nil {
		return fmt.Errorf("sqlite delete snapshot: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

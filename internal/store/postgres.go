package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PostgresBackend stores the snapshot as one JSONB row. A save only replaces
// a row holding an older revision, so a second process writing the same key
// fails with ErrStaleRevision instead of overwriting newer state.
type PostgresBackend struct {
	db     *sql.DB
	key    string
	tracer trace.Tracer
}

func NewPostgresBackend(db *sql.DB, key string) *PostgresBackend {
	return &PostgresBackend{
		db:     db,
		key:    key,
		tracer: otel.Tracer("printshop/store"),
	}
}

// CreateSchema creates the snapshot table if it does not exist.
func (b *PostgresBackend) CreateSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS store_snapshots (
			id TEXT PRIMARY KEY,
			revision BIGINT NOT NULL,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context) (*Snapshot, error) {
	ctx, span := b.tracer.Start(ctx, "store.postgres.load",
		trace.WithAttributes(attribute.String("snapshot.key", b.key)),
	)
	defer span.End()

	var state []byte
	err := b.db.QueryRowContext(ctx, `
		SELECT state
		FROM store_snapshots
		WHERE id = $1
	`, b.key).Scan(&state)

	if errors.Is(err, sql.ErrNoRows) {
		return NewSnapshot(), nil
	}
	if err != nil {
		// undefined_table: schema not created yet
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return decodeSnapshot(state)
}

func (b *PostgresBackend) Save(ctx context.Context, snap *Snapshot) error {
	ctx, span := b.tracer.Start(ctx, "store.postgres.save",
		trace.WithAttributes(
			attribute.String("snapshot.key", b.key),
			attribute.Int64("snapshot.revision", snap.Revision),
		),
	)
	defer span.End()

	state, err := snapshotJSON(snap)
	if err != nil {
		return err
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO store_snapshots (id, revision, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET revision = EXCLUDED.revision,
		    state = EXCLUDED.state,
		    updated_at = EXCLUDED.updated_at
		WHERE store_snapshots.revision < EXCLUDED.revision
	`, b.key, snap.Revision, state, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if n == 0 {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return ErrStaleRevision
	}
	return nil
}

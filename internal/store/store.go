package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrStaleRevision   = errors.New("store: stale revision")
	ErrCorruptSnapshot = errors.New("store: corrupt snapshot")
	ErrClosed          = errors.New("store: closed")
)

// Backend persists whole snapshots. Save must be all-or-nothing.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Store owns the in-memory snapshot and serializes every mutation through a
// single writer. Mutations run against a private copy that replaces the
// current state only after the backend accepted it.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	current *Snapshot
	closed  bool
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Open loads the persisted snapshot, migrating it to the current schema.
func Open(ctx context.Context, backend Backend, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		tracer:  otel.Tracer("printshop/store"),
		logger:  logger,
	}

	ctx, span := s.tracer.Start(ctx, "store.open")
	defer span.End()

	snap, err := backend.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		snap = NewSnapshot()
	}

	from := snap.SchemaVersion
	if err := migrate(snap); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot: %w", err)
	}
	if from != snap.SchemaVersion {
		logger.Info("snapshot migrated", "from", from, "to", snap.SchemaVersion)
		snap.Revision++
		if err := backend.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to save migrated snapshot: %w", err)
		}
	}

	s.current = snap
	span.SetAttributes(
		attribute.Int64("snapshot.revision", snap.Revision),
		attribute.Int("snapshot.schema_version", snap.SchemaVersion),
	)
	return s, nil
}

// View runs fn with read access to the current snapshot. fn must not mutate
// the snapshot or retain pointers into it after returning.
func (s *Store) View(ctx context.Context, fn func(*Snapshot) error) error {
	_, span := s.tracer.Start(ctx, "store.view")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.current)
}

// Update runs fn against a copy of the snapshot. When fn returns nil the copy
// is persisted and becomes the current state; otherwise it is discarded and
// fn's error is returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(*Snapshot) error) error {
	ctx, span := s.tracer.Start(ctx, "store.update")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next, err := s.current.Clone()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clone snapshot: %w", err)
	}

	if err := fn(next); err != nil {
		span.SetAttributes(attribute.Bool("update.applied", false))
		return err
	}

	next.Revision = s.current.Revision + 1
	if err := s.backend.Save(ctx, next); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "snapshot save failed", "revision", next.Revision, "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.current = next
	span.SetAttributes(
		attribute.Bool("update.applied", true),
		attribute.Int64("snapshot.revision", next.Revision),
	)
	return nil
}

// Revision returns the revision of the current snapshot.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Revision
}

// Close rejects further access. It does not touch the backend.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	snap.ensureMaps()
	return snap, nil
}

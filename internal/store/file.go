package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FileBackend keeps the snapshot in a single JSON file. Writes go to a
// temporary file in the same directory which is then renamed over the target.
type FileBackend struct {
	path   string
	tracer trace.Tracer
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{
		path:   path,
		tracer: otel.Tracer("printshop/store"),
	}
}

func (b *FileBackend) Load(ctx context.Context) (*Snapshot, error) {
	_, span := b.tracer.Start(ctx, "store.file.load",
		trace.WithAttributes(attribute.String("file.path", b.path)),
	)
	defer span.End()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetAttributes(attribute.Bool("file.exists", false))
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	return decodeSnapshot(data)
}

func (b *FileBackend) Save(ctx context.Context, snap *Snapshot) error {
	_, span := b.tracer.Start(ctx, "store.file.save",
		trace.WithAttributes(
			attribute.String("file.path", b.path),
			attribute.Int64("snapshot.revision", snap.Revision),
		),
	)
	defer span.End()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		span.RecordError(err)
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	span.SetAttributes(attribute.Int("file.bytes", len(data)))
	return nil
}

package adapters

import (
	"context"

	"github.com/ruslano69/geoimport/pkg/bootstrap"
	"github.com/ruslano69/geoimport/pkg/geo"
	"github.com/ruslano69/geoimport/pkg/loader"
	"github.com/ruslano69/geoimport/pkg/retry"
)

// Backend is a storage target for both entity kinds.
type Backend interface {
	// Name returns the settings value the backend is registered under.
	Name() string

	// EnsureTable creates the table of kind, dropping a conflicting one first.
	EnsureTable(ctx context.Context, kind geo.Kind) (bootstrap.Descriptor, error)

	// Insert writes records of kind in batches and returns how many were
	// submitted. The first failing batch aborts the insert.
	Insert(ctx context.Context, kind geo.Kind, records []geo.Record, progress loader.Progress) (int, error)

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// Options carry run-scoped collaborators shared by every backend.
type Options struct {
	// Journal receives the records of a failed batch. nil disables it.
	Journal *retry.DLQ

	// Sleep replaces throttling and retry waits. nil uses real timers.
	Sleep retry.SleepFunc
}

package tasks

import (
	"context"
	"fmt"

	"devsetup/internal/config"
)

// Store persists tasks in insertion order. Implementations address rows by
// their stable ID; positions are derived by the Tracker from the order of All.
type Store interface {
	// All returns every task in insertion order.
	All(ctx context.Context) ([]Task, error)
	// Insert appends a task.
	Insert(ctx context.Context, t Task) error
	// Update replaces the task with the same ID, keeping its position.
	Update(ctx context.Context, t Task) error
	// Remove deletes the task with the given ID.
	Remove(ctx context.Context, id string) error
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg config.Tasks) (Store, error) {
	switch cfg.Backend {
	case "", "csv":
		return OpenCSV(cfg.File)
	case "sqlite":
		return OpenSQLite(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown task backend %q", cfg.Backend)
	}
}

// Package repository persists run traces.
package repository

import (
	"context"
	"errors"

	"github.com/xiaot623/conclave/internal/domain"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store is the trace store.
type Store interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRunCompleted(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)

	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]*domain.Event, error)

	Close() error
}

// Package store persists batch history.
package store

import (
	"context"

	"github.com/me/kbench/pkg/model"
)

// Store defines the persistence layer for kbench batches.
type Store interface {
	CreateBatch(ctx context.Context, b *model.Batch) error
	AppendOutcome(ctx context.Context, batchID string, out model.Outcome) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*model.Batch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

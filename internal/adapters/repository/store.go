// Package repository persists analysis records keyed by analysis id.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/metrics"
)

// Store provides read/write access to analysis records.
type Store interface {
	// Save inserts or replaces the record with a.ID. CreatedAt of an
	// existing record is kept.
	Save(ctx context.Context, a model.Analysis) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Analysis, error)

	// List returns records matching filter, newest first.
	List(ctx context.Context, filter model.Filter, limit, offset int) ([]model.Analysis, error)

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter model.Filter) (int, error)

	// Close releases backend resources.
	Close() error
}

func checkSave(a *model.Analysis) error {
	if a.ID == "" {
		return ErrInvalidAnalysis
	}
	return nil
}

func checkPage(limit, offset int) error {
	if limit < 1 || offset < 0 {
		return fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidLimit, limit, offset)
	}
	return nil
}

// observe records one store call. A miss is a normal outcome, not an error.
func observe(backend, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOperation(backend, op, err)
}

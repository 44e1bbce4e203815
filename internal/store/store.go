// Package store provides a generic record store over named collections of
// schemaless JSON documents. It offers per-record conditional updates but no
// cross-collection transactions.
package store

import (
	"context"
	"time"
)

// Record is the stored envelope around a JSON document. Version increments on
// every write and is the compare value for conditional updates.
type Record struct {
	ID        string
	Version   int64
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter selects records whose top-level JSON field equals a value.
type Filter struct {
	Field  string
	Equals string
}

// Store is the document store port consumed by every domain package.
type Store interface {
	// Create inserts a record. When id is empty a fresh one is generated.
	// Inserting an existing id fails with shared.ErrConflict.
	Create(ctx context.Context, collection, id string, data []byte) (Record, error)
	// GetByID fetches one record, shared.ErrNotFound when absent.
	GetByID(ctx context.Context, collection, id string) (Record, error)
	// GetAll lists records in a collection, optionally filtered.
	GetAll(ctx context.Context, collection string, filter *Filter) ([]Record, error)
	// Update replaces the document, shared.ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, data []byte) (Record, error)
	// UpdateCAS replaces the document only when the stored version equals
	// expectedVersion, failing with shared.ErrConflict otherwise.
	UpdateCAS(ctx context.Context, collection, id string, expectedVersion int64, data []byte) (Record, error)
	// Delete removes a record. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error
}

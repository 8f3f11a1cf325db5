// Package vector abstracts vector similarity search behind a small Index
// interface with in-memory and Pinecone drivers. Indexes are opened from
// settings URLs such as "pinecone://my-index?dimension=1536".
package vector

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("vector: not found")
	// ErrDimensionMismatch indicates a vector's length does not match the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	// ErrClosed indicates the index was closed.
	ErrClosed = errors.New("vector: index closed")
)

// Record is one stored vector with optional metadata.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

// Match is one query result, ordered by descending similarity score.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Index is the vector store contract shared by every driver.
type Index interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error
	// Query returns the topK records most similar to values.
	Query(ctx context.Context, values []float32, topK int) ([]Match, error)
	// Fetch returns the stored record for id.
	Fetch(ctx context.Context, id string) (Record, error)
	// Delete removes records by ID; missing IDs are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Close releases driver resources.
	Close() error
}

func checkDimension(dimension int, values []float32) error {
	if dimension > 0 && len(values) != dimension {
		return fmt.Errorf("%w: got %d values, index dimension is %d",
			ErrDimensionMismatch, len(values), dimension)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}

package vector

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestMemUpsertQueryOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMem(MemConfig{Dimension: 3})
	defer idx.Close()

	err := idx.Upsert(ctx, []Record{
		{ID: "x-axis", Values: []float32{1, 0, 0}, Metadata: map[string]string{"axis": "x"}},
		{ID: "y-axis", Values: []float32{0, 1, 0}},
		{ID: "diagonal", Values: []float32{1, 1, 0}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := idx.Query(ctx, []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "x-axis" {
		t.Fatalf("best match = %q, want x-axis", matches[0].ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatalf("matches not ordered by score: %v", matches)
	}
	if matches[0].Metadata["axis"] != "x" {
		t.Fatalf("metadata missing from match: %+v", matches[0])
	}
}

func TestMemCosineScores(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(float64(got)-1) > 1e-6 {
		t.Fatalf("identical vectors: score = %v, want 1", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(float64(got)) > 1e-6 {
		t.Fatalf("orthogonal vectors: score = %v, want 0", got)
	}
	if got := cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(float64(got)+1) > 1e-6 {
		t.Fatalf("opposite vectors: score = %v, want -1", got)
	}
	if got := cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector: score = %v, want 0", got)
	}
}

func TestMemDimensionEnforcement(t *testing.T) {
	ctx := context.Background()
	idx := NewMem(MemConfig{Dimension: 3})
	defer idx.Close()

	err := idx.Upsert(ctx, []Record{{ID: "short", Values: []float32{1, 2}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("short upsert: err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := idx.Query(ctx, []float32{1}, 5); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("short query: err = %v, want ErrDimensionMismatch", err)
	}
	// A mismatched record anywhere in the batch rejects the whole batch.
	err = idx.Upsert(ctx, []Record{
		{ID: "ok", Values: []float32{1, 2, 3}},
		{ID: "bad", Values: []float32{1}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("mixed batch: err = %v, want ErrDimensionMismatch", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("rejected batch partially applied: %d records", idx.Len())
	}
}

func TestMemAdoptsFirstDimension(t *testing.T) {
	ctx := context.Background()
	idx := NewMem(MemConfig{})
	defer idx.Close()

	if err := idx.Upsert(ctx, []Record{{ID: "a", Values: []float32{1, 2, 3, 4}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := idx.Upsert(ctx, []Record{{ID: "b", Values: []float32{1, 2}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch after dimension adopted", err)
	}
}

func TestMemFetchAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMem(MemConfig{})
	defer idx.Close()

	if err := idx.Upsert(ctx, []Record{{ID: "a", Values: []float32{1, 2}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, err := idx.Fetch(ctx, "a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.ID != "a" || len(rec.Values) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := idx.Fetch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fetch missing: err = %v, want ErrNotFound", err)
	}
	if err := idx.Delete(ctx, "a", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := idx.Fetch(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fetch after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	idx := NewMem(MemConfig{})
	defer idx.Close()

	if err := idx.Upsert(ctx, []Record{{ID: "a", Values: []float32{1, 0}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, []Record{{ID: "a", Values: []float32{0, 1}}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 record after replace, got %d", idx.Len())
	}
	rec, err := idx.Fetch(ctx, "a")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.Values[0] != 0 || rec.Values[1] != 1 {
		t.Fatalf("record not replaced: %+v", rec)
	}
}

func TestOpenMemScheme(t *testing.T) {
	idx, err := Open(context.Background(), "mem://?dimension=8")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*Mem); !ok {
		t.Fatalf("open returned %T, want *Mem", idx)
	}
}

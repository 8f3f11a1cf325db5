package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Index, error) {
		return NewMem(MemConfig{Dimension: u.Int("dimension", 0)}), nil
	}, "mem", "memory")
}

// MemConfig configures the in-memory index.
type MemConfig struct {
	// Dimension fixes the vector length; 0 adopts the dimension of the
	// first upserted record.
	Dimension int
}

// Mem implements Index with brute-force cosine similarity over an in-process
// map; intended for tests and small corpora.
type Mem struct {
	mu        sync.RWMutex
	records   map[string]Record
	dimension int
	closed    bool
}

// NewMem returns an empty in-memory index.
func NewMem(cfg MemConfig) *Mem {
	return &Mem{
		records:   make(map[string]Record),
		dimension: cfg.Dimension,
	}
}

func (m *Mem) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, rec := range records {
		if m.dimension == 0 {
			m.dimension = len(rec.Values)
		}
		if err := checkDimension(m.dimension, rec.Values); err != nil {
			return err
		}
	}
	for _, rec := range records {
		stored := Record{
			ID:     rec.ID,
			Values: append([]float32(nil), rec.Values...),
		}
		if rec.Metadata != nil {
			stored.Metadata = make(map[string]string, len(rec.Metadata))
			for k, v := range rec.Metadata {
				stored.Metadata[k] = v
			}
		}
		m.records[rec.ID] = stored
	}
	return nil
}

func (m *Mem) Query(_ context.Context, values []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkDimension(m.dimension, values); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	matches := make([]Match, 0, len(m.records))
	for _, rec := range m.records {
		matches = append(matches, Match{
			ID:       rec.ID,
			Score:    cosine(values, rec.Values),
			Metadata: rec.Metadata,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Mem) Fetch(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, ErrClosed
	}
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Mem) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Len reports the number of stored records.
func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

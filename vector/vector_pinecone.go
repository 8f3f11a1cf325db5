package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(ctx context.Context, u *setting.URL) (Index, error) {
		return NewPinecone(ctx, PineconeConfig{
			APIKey:    u.Secret("api-key", "PINECONE_API_KEY"),
			IndexName: u.Host(),
			Namespace: u.String("namespace", ""),
			Dimension: u.Int("dimension", 0),
		})
	}, "pinecone")
}

// PineconeConnection is the subset of the Pinecone index API the driver
// uses.
type PineconeConnection interface {
	UpsertVectors(ctx context.Context, vectors []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, req *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	FetchVectors(ctx context.Context, ids []string) (*pinecone.FetchVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	Close() error
}

// PineconeConfig controls the Pinecone driver.
type PineconeConfig struct {
	APIKey    string
	IndexName string
	Namespace string
	// Dimension enables client-side vector length checks; 0 disables them.
	Dimension int
	// Connection overrides the Pinecone connection; tests use this.
	Connection PineconeConnection
}

// Pinecone implements Index on a Pinecone serverless or pod index.
type Pinecone struct {
	conn      PineconeConnection
	dimension int
}

// NewPinecone resolves the index host through the control plane and connects
// to it.
func NewPinecone(ctx context.Context, cfg PineconeConfig) (*Pinecone, error) {
	if cfg.Connection != nil {
		return &Pinecone{conn: cfg.Connection, dimension: cfg.Dimension}, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vector: pinecone api key required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("vector: pinecone index name required")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("vector: pinecone client: %w", err)
	}
	idx, err := client.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, fmt.Errorf("vector: describe index %q: %w", cfg.IndexName, err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect to index %q: %w", cfg.IndexName, err)
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = int(idx.Dimension)
	}
	return &Pinecone{conn: conn, dimension: dimension}, nil
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, rec := range records {
		if err := checkDimension(p.dimension, rec.Values); err != nil {
			return err
		}
		values := append([]float32(nil), rec.Values...)
		vec := &pinecone.Vector{Id: rec.ID, Values: values}
		if len(rec.Metadata) > 0 {
			md, err := metadataStruct(rec.Metadata)
			if err != nil {
				return err
			}
			vec.Metadata = md
		}
		vectors = append(vectors, vec)
	}
	if _, err := p.conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("vector: pinecone upsert: %w", err)
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, values []float32, topK int) ([]Match, error) {
	if err := checkDimension(p.dimension, values); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          values,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: pinecone query: %w", err)
	}
	matches := make([]Match, 0, len(resp.Matches))
	for _, scored := range resp.Matches {
		if scored == nil || scored.Vector == nil {
			continue
		}
		matches = append(matches, Match{
			ID:       scored.Vector.Id,
			Score:    scored.Score,
			Metadata: metadataMap(scored.Vector.Metadata),
		})
	}
	return matches, nil
}

func (p *Pinecone) Fetch(ctx context.Context, id string) (Record, error) {
	resp, err := p.conn.FetchVectors(ctx, []string{id})
	if err != nil {
		return Record{}, fmt.Errorf("vector: pinecone fetch: %w", err)
	}
	vec, ok := resp.Vectors[id]
	if !ok || vec == nil {
		return Record{}, ErrNotFound
	}
	rec := Record{ID: vec.Id, Metadata: metadataMap(vec.Metadata)}
	if vec.Values != nil {
		rec.Values = append([]float32(nil), vec.Values...)
	}
	return rec, nil
}

func (p *Pinecone) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := p.conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("vector: pinecone delete: %w", err)
	}
	return nil
}

// Close releases the index connection.
func (p *Pinecone) Close() error { return p.conn.Close() }

func metadataStruct(metadata map[string]string) (*pinecone.Metadata, error) {
	fields := make(map[string]any, len(metadata))
	for k, v := range metadata {
		fields[k] = v
	}
	md, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("vector: encode metadata: %w", err)
	}
	return md, nil
}

func metadataMap(md *pinecone.Metadata) map[string]string {
	if md == nil || len(md.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(md.Fields))
	for k, v := range md.Fields {
		if sv, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out[k] = sv.StringValue
		}
	}
	return out
}

// Package qdrant implements vector.Store on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/hrrag/internal/chunker"
	"github.com/efebarandurmaz/hrrag/internal/vector"
)

// pointNamespace derives stable point UUIDs from chunk ids, so re-indexing
// the same document overwrites instead of duplicating.
var pointNamespace = uuid.MustParse("6f1f4a52-8a3c-4c8e-9d0b-2b7e8f6c1a90")

// PointID returns the Qdrant point id for a chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Repository implements vector.Store using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant's gRPC port.
func New(ctx context.Context, host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (r *Repository) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dim),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.EnsureCollection(ctx, len(items[0].Embedding)); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(items))
	for i, it := range items {
		c := it.Chunk
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(c.ChunkID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: it.Embedding}}},
			Payload: payloadFor(c),
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

func payloadFor(c chunker.Chunk) map[string]*pb.Value {
	return map[string]*pb.Value{
		"chunk_id": {Kind: &pb.Value_StringValue{StringValue: c.ChunkID}},
		"text":     {Kind: &pb.Value_StringValue{StringValue: c.Text}},
		"page":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Page)}},
		"start":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Start)}},
		"end":      {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.End)}},
	}
}

// Search asks Qdrant for the k nearest points, vectors included so the
// reranker can compute cosine similarity locally.
func (r *Repository) Search(ctx context.Context, vec []float32, k int) ([]vector.Candidate, error) {
	if k <= 0 {
		return []vector.Candidate{}, nil
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector.Normalize(vec),
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	return candidatesFrom(resp.GetResult()), nil
}

func candidatesFrom(points []*pb.ScoredPoint) []vector.Candidate {
	out := make([]vector.Candidate, len(points))
	for i, pt := range points {
		payload := pt.GetPayload()
		out[i] = vector.Candidate{
			ChunkID:   payload["chunk_id"].GetStringValue(),
			Text:      payload["text"].GetStringValue(),
			Page:      int(payload["page"].GetIntegerValue()),
			Score:     float64(pt.GetScore()),
			Embedding: denseVector(pt.GetVectors().GetVector()),
			Idx:       i,
		}
	}
	return out
}

// denseVector reads the typed dense field newer servers send, falling back
// to the legacy flat data field.
func denseVector(v *pb.VectorOutput) []float32 {
	if d := v.GetDense().GetData(); len(d) > 0 {
		return d
	}
	return v.GetData()
}

// Size returns the exact point count of the collection.
func (r *Repository) Size(ctx context.Context) (int, error) {
	exact := true
	resp, err := r.points.Count(ctx, &pb.CountPoints{CollectionName: r.collection, Exact: &exact})
	if err != nil {
		return 0, err
	}
	return int(resp.GetResult().GetCount()), nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

var _ vector.Store = (*Repository)(nil)

package vectordb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// QdrantStore implements ports.VectorStore against a remote Qdrant instance
// over gRPC. Qdrant computes cosine similarity and applies the score
// threshold server-side.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   uint64
}

// NewQdrantStore connects to Qdrant and ensures the collection exists with
// the given vector dimension and cosine distance.
func NewQdrantStore(ctx context.Context, host string, port int, collection string, dimension int) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	s := &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   uint64(dimension),
	}
	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

// Upsert writes chunks as points. Point IDs are UUIDs derived
// deterministically from the chunk ID, so re-ingestion overwrites in place;
// the original chunk ID travels in the payload.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []entities.Chunk) error {
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*pb.Value{
			"chunk_id":     {Kind: &pb.Value_StringValue{StringValue: c.ID}},
			"source_id":    {Kind: &pb.Value_StringValue{StringValue: c.SourceID}},
			"chunk_index":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Index)}},
			"start_offset": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.StartOffset)}},
			"overlap_len":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.OverlapLen)}},
			"text":         {Kind: &pb.Value_StringValue{StringValue: c.Text}},
		}
		for k, v := range c.Metadata {
			payload["meta_"+k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}

		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(c.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: c.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

// Search asks Qdrant for the top k points above minScore.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, k int, minScore float64) ([]entities.ScoredChunk, error) {
	threshold := float32(minScore)
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]entities.ScoredChunk, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		chunk := entities.Chunk{Metadata: make(map[string]string)}
		for key, v := range pt.GetPayload() {
			switch key {
			case "chunk_id":
				chunk.ID = v.GetStringValue()
			case "source_id":
				chunk.SourceID = v.GetStringValue()
			case "chunk_index":
				chunk.Index = int(v.GetIntegerValue())
			case "start_offset":
				chunk.StartOffset = int(v.GetIntegerValue())
			case "overlap_len":
				chunk.OverlapLen = int(v.GetIntegerValue())
			case "text":
				chunk.Text = v.GetStringValue()
			default:
				if len(key) > 5 && key[:5] == "meta_" {
					chunk.Metadata[key[5:]] = v.GetStringValue()
				}
			}
		}
		results = append(results, entities.ScoredChunk{Chunk: chunk, Score: float64(pt.GetScore())})
	}
	return results, nil
}

// DeleteBySource removes every point whose payload carries the source ID.
func (s *QdrantStore) DeleteBySource(ctx context.Context, sourceID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{{
						ConditionOneOf: &pb.Condition_Field{
							Field: &pb.FieldCondition{
								Key:   "source_id",
								Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: sourceID}},
							},
						},
					}},
				},
			},
		},
	})
	return err
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Reset drops and recreates the collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("qdrant delete collection: %w", err)
	}
	return s.ensureCollection(ctx)
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// pointUUID derives a stable UUID from a chunk ID; Qdrant point IDs must be
// UUIDs or integers.
func pointUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

package vector

import (
	"context"
	"fmt"
	"time"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/models"
)

// pointSearcher is the part of qdrant's PointsClient the store uses
type pointSearcher interface {
	Search(ctx context.Context, in *qdrantclient.SearchPoints, opts ...grpc.CallOption) (*qdrantclient.SearchResponse, error)
}

// collectionLister is the part of qdrant's CollectionsClient the store uses
type collectionLister interface {
	List(ctx context.Context, in *qdrantclient.ListCollectionsRequest, opts ...grpc.CallOption) (*qdrantclient.ListCollectionsResponse, error)
}

// QdrantStore searches a Qdrant collection over gRPC
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointSearcher
	collections collectionLister
	collection  string
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects to the Qdrant gRPC endpoint at addr
func NewQdrantStore(addr, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	return &QdrantStore{
		conn:        conn,
		points:      qdrantclient.NewPointsClient(conn),
		collections: qdrantclient.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// VerifyCollection checks that the configured collection exists
func (s *QdrantStore) VerifyCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	collections, err := s.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range collections.GetCollections() {
		if col.GetName() == s.collection {
			logging.Debugf("✅ Verified Qdrant collection '%s' exists", s.collection)
			return nil
		}
	}
	return fmt.Errorf("collection '%s' does not exist", s.collection)
}

// Search returns the closest points, most similar first
func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, limit int) ([]models.SearchResult, error) {
	searchReq := &qdrantclient.SearchPoints{
		CollectionName: s.collection,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
				Include: &qdrantclient.PayloadIncludeSelector{
					Fields: []string{PayloadText, PayloadSource},
				},
			},
		},
	}

	searchResp, err := s.points.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Qdrant: %w", err)
	}

	logging.Debugf("🔍 Found %d relevant chunks in Qdrant", len(searchResp.GetResult()))

	now := time.Now()
	results := make([]models.SearchResult, 0, len(searchResp.GetResult()))
	for _, point := range searchResp.GetResult() {
		chunk := models.Chunk{ID: pointID(point.GetId())}
		if textVal, ok := point.GetPayload()[PayloadText]; ok {
			chunk.Content = textVal.GetStringValue()
		}
		if sourceVal, ok := point.GetPayload()[PayloadSource]; ok {
			chunk.Source = sourceVal.GetStringValue()
		}

		results = append(results, models.SearchResult{
			Chunk:       chunk,
			Score:       point.GetScore(),
			RetrievedAt: now,
		})
	}
	return results, nil
}

func pointID(id *qdrantclient.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// Close closes the gRPC connection
func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

package vector

import (
	"context"
	"errors"
	"testing"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakePoints struct {
	req  *qdrantclient.SearchPoints
	resp *qdrantclient.SearchResponse
	err  error
}

func (f *fakePoints) Search(_ context.Context, in *qdrantclient.SearchPoints, _ ...grpc.CallOption) (*qdrantclient.SearchResponse, error) {
	f.req = in
	return f.resp, f.err
}

type fakeCollections struct {
	names []string
}

func (f *fakeCollections) List(context.Context, *qdrantclient.ListCollectionsRequest, ...grpc.CallOption) (*qdrantclient.ListCollectionsResponse, error) {
	resp := &qdrantclient.ListCollectionsResponse{}
	for _, n := range f.names {
		resp.Collections = append(resp.Collections, &qdrantclient.CollectionDescription{Name: n})
	}
	return resp, nil
}

func stringValue(s string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
}

func TestQdrantSearch(t *testing.T) {
	points := &fakePoints{resp: &qdrantclient.SearchResponse{
		Result: []*qdrantclient.ScoredPoint{
			{
				Id:      &qdrantclient.PointId{PointIdOptions: &qdrantclient.PointId_Num{Num: 7}},
				Score:   0.9,
				Payload: map[string]*qdrantclient.Value{PayloadText: stringValue("doc about X"), PayloadSource: stringValue("x.md")},
			},
			{
				Id:      &qdrantclient.PointId{PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: "abc"}},
				Score:   0.5,
				Payload: map[string]*qdrantclient.Value{PayloadText: stringValue("doc about Y")},
			},
		},
	}}
	store := &QdrantStore{points: points, collection: "stonks_rag"}

	results, err := store.Search(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "stonks_rag", points.req.GetCollectionName())
	assert.Equal(t, uint64(2), points.req.GetLimit())
	assert.Equal(t, []float32{0.1, 0.2}, points.req.GetVector())

	assert.Equal(t, "7", results[0].Chunk.ID)
	assert.Equal(t, "doc about X", results[0].Chunk.Content)
	assert.Equal(t, "x.md", results[0].Chunk.Source)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)

	assert.Equal(t, "abc", results[1].Chunk.ID)
	assert.Empty(t, results[1].Chunk.Source)
}

func TestQdrantSearchError(t *testing.T) {
	store := &QdrantStore{points: &fakePoints{err: errors.New("unavailable")}, collection: "c"}

	_, err := store.Search(context.Background(), []float32{1}, 2)
	assert.ErrorContains(t, err, "failed to search in Qdrant")
}

func TestQdrantVerifyCollection(t *testing.T) {
	store := &QdrantStore{collections: &fakeCollections{names: []string{"other", "stonks_rag"}}, collection: "stonks_rag"}
	assert.NoError(t, store.VerifyCollection(context.Background()))

	store.collection = "missing"
	assert.ErrorContains(t, store.VerifyCollection(context.Background()), "does not exist")
}

func TestQdrantCloseWithoutConn(t *testing.T) {
	assert.NoError(t, (&QdrantStore{}).Close())
}

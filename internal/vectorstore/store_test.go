package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   [][]string
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	if e.vectors != nil {
		return e.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// stubClient implements pointsClient with overridable behaviors.
type stubClient struct {
	exists    bool
	existsErr error

	created      []*qdrant.CreateCollection
	fieldIndexes []string
	upserts      []*qdrant.UpsertPoints
	upsertErr    error
	deletes      []*qdrant.DeletePoints

	queryFn       func(*qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	facetFn       func(*qdrant.FacetCounts) ([]*qdrant.FacetHit, error)
	groupsFn      func(*qdrant.QueryPointGroups) ([]*qdrant.PointGroup, error)
	scrollFn      func(*qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	scrollPagesFn func(*qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	countFn       func(*qdrant.CountPoints) (uint64, error)
}

func (c *stubClient) CollectionExists(context.Context, string) (bool, error) {
	return c.exists, c.existsErr
}

func (c *stubClient) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	c.created = append(c.created, req)
	c.exists = true
	return nil
}

func (c *stubClient) CreateFieldIndex(_ context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	c.fieldIndexes = append(c.fieldIndexes, req.GetFieldName())
	return nil, nil
}

func (c *stubClient) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if c.upsertErr != nil {
		return nil, c.upsertErr
	}
	c.upserts = append(c.upserts, req)
	return nil, nil
}

func (c *stubClient) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	c.deletes = append(c.deletes, req)
	return nil, nil
}

func (c *stubClient) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	if c.queryFn != nil {
		return c.queryFn(req)
	}
	return nil, nil
}

func (c *stubClient) QueryGroups(_ context.Context, req *qdrant.QueryPointGroups) ([]*qdrant.PointGroup, error) {
	if c.groupsFn != nil {
		return c.groupsFn(req)
	}
	return nil, nil
}

func (c *stubClient) Scroll(_ context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	if c.scrollFn != nil {
		return c.scrollFn(req)
	}
	return nil, nil
}

func (c *stubClient) ScrollAndOffset(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	if c.scrollPagesFn != nil {
		return c.scrollPagesFn(req)
	}
	points, err := c.Scroll(ctx, req)
	return points, nil, err
}

func (c *stubClient) Facet(_ context.Context, req *qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
	if c.facetFn != nil {
		return c.facetFn(req)
	}
	return nil, nil
}

func (c *stubClient) Count(_ context.Context, req *qdrant.CountPoints) (uint64, error) {
	if c.countFn != nil {
		return c.countFn(req)
	}
	return 0, nil
}

func (c *stubClient) Close() error { return nil }

func testConfig() Config {
	return Config{
		Host:                    "localhost",
		Port:                    6334,
		Collection:              "snippets",
		VectorSize:              3,
		MaxRetries:              1,
		RetryBackoff:            time.Millisecond,
		CircuitBreakerThreshold: 5,
	}
}

func testStore(client *stubClient, embedder *stubEmbedder) *Store {
	return newStore(client, testConfig(), embedder, zap.NewNop())
}

func testSnippet(title string) snippet.Snippet {
	return snippet.Snippet{
		Title:       title,
		Description: "description of " + title,
		Language:    "go",
		Code:        "func main() {}",
		Path:        "main.go",
		RepoName:    "widgets",
		RepoURL:     "https://github.com/acme/widgets",
		IngestID:    "ingest-1",
	}
}

func scoredPoint(title string, score float32, vector []float32) *qdrant.ScoredPoint {
	p := &qdrant.ScoredPoint{
		Score:   score,
		Payload: snippetPayload(testSnippet(title), "key"),
	}
	if vector != nil {
		p.Vectors = &qdrant.VectorsOutput{
			VectorsOptions: &qdrant.VectorsOutput_Vector{
				Vector: &qdrant.VectorOutput{Data: vector},
			},
		}
	}
	return p
}

func retrievedPoint(repoName, ingestID string) *qdrant.RetrievedPoint {
	sn := testSnippet("t")
	sn.RepoName = repoName
	sn.IngestID = ingestID
	sn.RepoURL = "https://example.com/" + repoName
	return &qdrant.RetrievedPoint{Payload: snippetPayload(sn, "key")}
}

func TestAddSnippets_CreatesCollectionAndUpserts(t *testing.T) {
	client := &stubClient{exists: false}
	embedder := &stubEmbedder{vectors: [][]float32{{1, 0, 0}, {0, 1, 0}}}
	store := testStore(client, embedder)

	first := testSnippet("first")
	second := testSnippet("second")
	stored, err := store.AddSnippets(context.Background(), []snippet.Snippet{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	require.Len(t, client.created, 1)
	assert.Equal(t, "snippets", client.created[0].GetCollectionName())
	assert.Contains(t, client.fieldIndexes, "repo_name")
	assert.Contains(t, client.fieldIndexes, "ingest_id")

	require.Len(t, client.upserts, 1)
	points := client.upserts[0].GetPoints()
	require.Len(t, points, 2)

	// Point identity derives from the embedded text, so re-ingesting the
	// same snippet overwrites its point.
	input := embeddingInput(first)
	wantID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(input)).String()
	assert.Equal(t, wantID, points[0].GetId().GetUuid())
	assert.Equal(t, "first", points[0].GetPayload()[fieldTitle].GetStringValue())
	assert.Equal(t, embeddingKey(input), points[0].GetPayload()[fieldEmbeddingKey].GetStringValue())

	require.Len(t, embedder.calls, 1)
	assert.Equal(t, input, embedder.calls[0][0])
}

func TestAddSnippets_Empty(t *testing.T) {
	client := &stubClient{exists: true}
	store := testStore(client, &stubEmbedder{})

	stored, err := store.AddSnippets(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Empty(t, client.upserts)
}

func TestAddSnippets_TruncatesOnVectorShortfall(t *testing.T) {
	client := &stubClient{exists: true}
	embedder := &stubEmbedder{vectors: [][]float32{{1, 0, 0}, {0, 1, 0}}}
	store := testStore(client, embedder)

	snippets := []snippet.Snippet{testSnippet("a"), testSnippet("b"), testSnippet("c")}
	stored, err := store.AddSnippets(context.Background(), snippets)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	require.Len(t, client.upserts, 1)
	assert.Len(t, client.upserts[0].GetPoints(), 2)
}

func TestAddSnippets_Batches(t *testing.T) {
	client := &stubClient{exists: true}
	store := testStore(client, &stubEmbedder{})

	snippets := make([]snippet.Snippet, 250)
	for i := range snippets {
		snippets[i] = testSnippet(fmt.Sprintf("snippet-%d", i))
	}
	stored, err := store.AddSnippets(context.Background(), snippets)
	require.NoError(t, err)
	assert.Equal(t, 250, stored)
	require.Len(t, client.upserts, 3)
	assert.Len(t, client.upserts[0].GetPoints(), 100)
	assert.Len(t, client.upserts[2].GetPoints(), 50)
}

func TestAddSnippets_EmbeddingFailure(t *testing.T) {
	client := &stubClient{exists: true}
	store := testStore(client, &stubEmbedder{err: errors.New("boom")})

	_, err := store.AddSnippets(context.Background(), []snippet.Snippet{testSnippet("a")})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestQuery_ShortCircuits(t *testing.T) {
	tests := []struct {
		name string
		text string
		opts QueryOptions
	}{
		{name: "empty text", text: "", opts: QueryOptions{Limit: 5}},
		{name: "whitespace text", text: "  \t\n", opts: QueryOptions{Limit: 5}},
		{name: "zero limit", text: "worker pool", opts: QueryOptions{}},
		{name: "negative limit", text: "worker pool", opts: QueryOptions{Limit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &stubEmbedder{}
			store := testStore(&stubClient{exists: true}, embedder)

			results, err := store.Query(context.Background(), tt.text, tt.opts)
			require.NoError(t, err)
			assert.Nil(t, results)
			assert.Empty(t, embedder.calls)
		})
	}
}

func TestQuery_MissingCollection(t *testing.T) {
	store := testStore(&stubClient{exists: false}, &stubEmbedder{})

	results, err := store.Query(context.Background(), "worker pool", QueryOptions{Limit: 5})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestQuery_EmbedderReturnsNoVectors(t *testing.T) {
	queried := false
	client := &stubClient{
		exists: true,
		queryFn: func(*qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			queried = true
			return nil, nil
		},
	}
	embedder := &stubEmbedder{vectors: [][]float32{}}
	store := testStore(client, embedder)

	results, err := store.Query(context.Background(), "worker pool", QueryOptions{Limit: 5})
	require.NoError(t, err)
	assert.Nil(t, results)
	require.Len(t, embedder.calls, 1)
	assert.False(t, queried)
}

func TestQuery_PlainOrder(t *testing.T) {
	client := &stubClient{
		exists: true,
		queryFn: func(req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			assert.EqualValues(t, 2, req.GetLimit())
			return []*qdrant.ScoredPoint{
				scoredPoint("best", 0.9, nil),
				scoredPoint("second", 0.8, nil),
			}, nil
		},
	}
	store := testStore(client, &stubEmbedder{})

	results, err := store.Query(context.Background(), "worker pool", QueryOptions{Limit: 2, DisableMMR: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "best", results[0].Snippet.Title)
	assert.Equal(t, float32(0.9), results[0].Score)
	assert.Equal(t, "second", results[1].Snippet.Title)
}

func TestQuery_Filters(t *testing.T) {
	var captured *qdrant.QueryPoints
	client := &stubClient{
		exists: true,
		queryFn: func(req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			captured = req
			return nil, nil
		},
	}
	store := testStore(client, &stubEmbedder{})

	_, err := store.Query(context.Background(), "parse yaml", QueryOptions{
		Limit:      5,
		RepoName:   "widgets",
		Language:   "go",
		DisableMMR: true,
	})
	require.NoError(t, err)
	require.NotNil(t, captured)
	require.NotNil(t, captured.GetFilter())
	assert.Len(t, captured.GetFilter().GetMust(), 2)
}

func TestQuery_SkipsIncompletePayloads(t *testing.T) {
	broken := &qdrant.ScoredPoint{
		Score:   0.7,
		Payload: map[string]*qdrant.Value{fieldTitle: stringValue("only a title")},
	}
	client := &stubClient{
		exists: true,
		queryFn: func(*qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			return []*qdrant.ScoredPoint{scoredPoint("good", 0.9, nil), broken}, nil
		},
	}
	store := testStore(client, &stubEmbedder{})

	results, err := store.Query(context.Background(), "anything", QueryOptions{Limit: 5, DisableMMR: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Snippet.Title)
}

func TestQuery_MMRPicksDiverseResults(t *testing.T) {
	// Candidates one and two are near-duplicates; three is less relevant
	// but diverse. MMR should keep one and three.
	client := &stubClient{
		exists: true,
		queryFn: func(req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			assert.EqualValues(t, minCandidates, req.GetLimit())
			return []*qdrant.ScoredPoint{
				scoredPoint("one", 0.80, []float32{0.8, 0.6}),
				scoredPoint("two", 0.78, []float32{0.78, 0.625}),
				scoredPoint("three", 0.60, []float32{0.6, -0.8}),
			}, nil
		},
	}
	store := testStore(client, &stubEmbedder{vectors: [][]float32{{1, 0}}})

	results, err := store.Query(context.Background(), "queue", QueryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].Snippet.Title)
	assert.Equal(t, "three", results[1].Snippet.Title)
}

func TestQuery_MMRFallsBackWithoutVectors(t *testing.T) {
	client := &stubClient{
		exists: true,
		queryFn: func(*qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
			return []*qdrant.ScoredPoint{
				scoredPoint("one", 0.9, nil),
				scoredPoint("two", 0.8, nil),
				scoredPoint("three", 0.7, nil),
			}, nil
		},
	}
	store := testStore(client, &stubEmbedder{vectors: [][]float32{{1, 0}}})

	results, err := store.Query(context.Background(), "queue", QueryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].Snippet.Title)
	assert.Equal(t, "two", results[1].Snippet.Title)
}

// ingestSampler resolves an ingest-filtered scroll to one point whose
// repo name comes from the given mapping.
func ingestSampler(names map[string]string) func(*qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	return func(req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
		id := req.GetFilter().GetMust()[0].GetField().GetMatch().GetKeyword()
		name, ok := names[id]
		if !ok {
			return nil, nil
		}
		return []*qdrant.RetrievedPoint{retrievedPoint(name, id)}, nil
	}
}

func TestListCompletedRepositories_Facet(t *testing.T) {
	var captured *qdrant.FacetCounts
	client := &stubClient{
		exists: true,
		facetFn: func(req *qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			captured = req
			return []*qdrant.FacetHit{
				{
					Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-1"}},
					Count: 3,
				},
				{
					Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-2"}},
					Count: 1,
				},
			}, nil
		},
		scrollFn: ingestSampler(map[string]string{"ingest-1": "repo-one", "ingest-2": "repo-two"}),
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "repo-one", repos[0].RepoName)
	assert.Equal(t, "https://example.com/repo-one", repos[0].RepoURL)
	assert.Equal(t, "ingest-1", repos[0].IngestID)
	assert.Equal(t, "ingest-2", repos[1].IngestID)

	require.NotNil(t, captured)
	assert.Equal(t, fieldIngestID, captured.GetKey())
	assert.EqualValues(t, 10, captured.GetLimit())
}

func TestListCompletedRepositories_FallsBackToScroll(t *testing.T) {
	// Six points fill the first scroll page but cover only two ingests;
	// the second page is empty, so exactly those two surface.
	pages := 0
	client := &stubClient{
		exists: true,
		facetFn: func(*qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			return nil, errors.New("facet unsupported")
		},
		groupsFn: func(*qdrant.QueryPointGroups) ([]*qdrant.PointGroup, error) {
			return nil, errors.New("groups unsupported")
		},
		scrollPagesFn: func(req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
			pages++
			if pages > 1 {
				return nil, nil, nil
			}
			var points []*qdrant.RetrievedPoint
			for i := 0; i < 3; i++ {
				points = append(points,
					retrievedPoint("job-a", "ingest-1"),
					retrievedPoint("job-b", "ingest-2"))
			}
			return points, qdrant.NewIDNum(6), nil
		},
		scrollFn: ingestSampler(map[string]string{"ingest-1": "job-a", "ingest-2": "job-b"}),
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 3, nil)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "job-a", repos[0].RepoName)
	assert.Equal(t, "job-b", repos[1].RepoName)
	assert.Equal(t, 2, pages)
}

func TestListCompletedRepositories_ScrollStopsAtLimit(t *testing.T) {
	pages := 0
	client := &stubClient{
		exists: true,
		facetFn: func(*qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			return nil, errors.New("facet unsupported")
		},
		groupsFn: func(*qdrant.QueryPointGroups) ([]*qdrant.PointGroup, error) {
			return nil, errors.New("groups unsupported")
		},
		scrollPagesFn: func(req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
			pages++
			return []*qdrant.RetrievedPoint{
				retrievedPoint("job-a", "ingest-1"),
				retrievedPoint("job-b", "ingest-2"),
			}, qdrant.NewIDNum(2), nil
		},
		scrollFn: ingestSampler(map[string]string{"ingest-1": "job-a", "ingest-2": "job-b"}),
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "ingest-1", repos[0].IngestID)
	assert.Equal(t, 1, pages)
}

func TestListCompletedRepositories_UsesGroupsWhenFacetFails(t *testing.T) {
	client := &stubClient{
		exists: true,
		facetFn: func(*qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			return nil, errors.New("facet unsupported")
		},
		groupsFn: func(req *qdrant.QueryPointGroups) ([]*qdrant.PointGroup, error) {
			assert.Equal(t, fieldIngestID, req.GetGroupBy())
			return []*qdrant.PointGroup{
				{Id: &qdrant.GroupId{Kind: &qdrant.GroupId_StringValue{StringValue: "ingest-9"}}},
			}, nil
		},
		scrollFn: ingestSampler(map[string]string{"ingest-9": "grouped"}),
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "grouped", repos[0].RepoName)
	assert.Equal(t, "ingest-9", repos[0].IngestID)
}

func TestListCompletedRepositories_ExcludesIngestIDs(t *testing.T) {
	var captured *qdrant.FacetCounts
	client := &stubClient{
		exists: true,
		facetFn: func(req *qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			captured = req
			return []*qdrant.FacetHit{
				{Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-1"}}},
				{Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-2"}}},
			}, nil
		},
		scrollFn: ingestSampler(map[string]string{"ingest-1": "job-a", "ingest-2": "job-b"}),
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 10, []string{"ingest-1"})
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "ingest-2", repos[0].IngestID)

	// Exclusion happens after discovery rather than through an index
	// filter.
	require.NotNil(t, captured)
	assert.Nil(t, captured.GetFilter())
}

func TestListCompletedRepositories_SkipsIngestsWithoutURL(t *testing.T) {
	bare := testSnippet("t")
	bare.RepoName = "job-a"
	bare.IngestID = "ingest-1"
	bare.RepoURL = ""
	client := &stubClient{
		exists: true,
		facetFn: func(*qdrant.FacetCounts) ([]*qdrant.FacetHit, error) {
			return []*qdrant.FacetHit{
				{Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-1"}}},
				{Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-2"}}},
				{Value: &qdrant.FacetValue{Variant: &qdrant.FacetValue_StringValue{StringValue: "ingest-3"}}},
			}, nil
		},
		scrollFn: func(req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
			switch req.GetFilter().GetMust()[0].GetField().GetMatch().GetKeyword() {
			case "ingest-1":
				return []*qdrant.RetrievedPoint{{Payload: snippetPayload(bare, "key")}}, nil
			case "ingest-2":
				return []*qdrant.RetrievedPoint{retrievedPoint("job-b", "ingest-2")}, nil
			default:
				// No stored points for this ingest.
				return nil, nil
			}
		},
	}
	store := testStore(client, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "ingest-2", repos[0].IngestID)
}

func TestListCompletedRepositories_MissingCollection(t *testing.T) {
	store := testStore(&stubClient{exists: false}, &stubEmbedder{})

	repos, err := store.ListCompletedRepositories(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestGetCompletedRepository(t *testing.T) {
	client := &stubClient{
		exists:   true,
		scrollFn: ingestSampler(map[string]string{"ingest-1": "widgets"}),
		countFn:  func(*qdrant.CountPoints) (uint64, error) { return 7, nil },
	}
	store := testStore(client, &stubEmbedder{})

	meta, err := store.GetCompletedRepository(context.Background(), "ingest-1")
	require.NoError(t, err)
	assert.Equal(t, "widgets", meta.RepoName)
	assert.Equal(t, "ingest-1", meta.IngestID)
	assert.EqualValues(t, 7, meta.SnippetCount)
}

func TestGetCompletedRepository_NotFound(t *testing.T) {
	store := testStore(&stubClient{exists: true}, &stubEmbedder{})

	_, err := store.GetCompletedRepository(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestDeleteRepository(t *testing.T) {
	client := &stubClient{exists: true}
	store := testStore(client, &stubEmbedder{})

	err := store.DeleteRepository(context.Background(), RepoSelector{
		RepoName: "widgets",
		IngestID: "ingest-1",
	})
	require.NoError(t, err)
	require.Len(t, client.deletes, 1)
	filter := client.deletes[0].GetPoints().GetFilter()
	require.NotNil(t, filter)
	assert.Len(t, filter.GetShould(), 2)
}

func TestDeleteRepository_RequiresIdentifier(t *testing.T) {
	store := testStore(&stubClient{exists: true}, &stubEmbedder{})

	err := store.DeleteRepository(context.Background(), RepoSelector{})
	assert.Error(t, err)
}

func TestDeleteRepository_MissingCollectionNoop(t *testing.T) {
	client := &stubClient{exists: false}
	store := testStore(client, &stubEmbedder{})

	require.NoError(t, store.DeleteRepository(context.Background(), RepoSelector{RepoName: "widgets"}))
	assert.Empty(t, client.deletes)
}

func TestCountForIngest(t *testing.T) {
	client := &stubClient{
		exists:  true,
		countFn: func(*qdrant.CountPoints) (uint64, error) { return 5, nil },
	}
	store := testStore(client, &stubEmbedder{})

	count, err := store.CountForIngest(context.Background(), "ingest-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestCountForRepo_MissingCollection(t *testing.T) {
	store := testStore(&stubClient{exists: false}, &stubEmbedder{})

	count, err := store.CountForRepo(context.Background(), "widgets")
	require.NoError(t, err)
	assert.Zero(t, count)
}

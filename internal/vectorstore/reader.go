package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	// candidateMultiplier widens the fetch for MMR reranking.
	candidateMultiplier = 4
	minCandidates       = 20

	// defaultDiscoveryLimit is the ingest discovery cap when the caller
	// passes a non-positive limit.
	defaultDiscoveryLimit = 100

	// maxScrollPage caps the page size of the scroll fallback.
	maxScrollPage = 256
)

// QueryOptions narrows and shapes a snippet query.
type QueryOptions struct {
	// Limit is the maximum snippets returned. Zero or negative yields no
	// results.
	Limit int

	// RepoName restricts results to one repository.
	RepoName string

	// Language restricts results to one language.
	Language string

	// DisableMMR skips diversity reranking and returns plain
	// nearest-neighbor order.
	DisableMMR bool
}

func matchKeyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: field,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func queryFilter(opts QueryOptions) *qdrant.Filter {
	var must []*qdrant.Condition
	if opts.RepoName != "" {
		must = append(must, matchKeyword(fieldRepoName, opts.RepoName))
	}
	if opts.Language != "" {
		must = append(must, matchKeyword(fieldLanguage, opts.Language))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Query embeds the query text and returns the closest snippets.
//
// Results are reranked with maximal marginal relevance by default so the
// caller sees diverse snippets rather than near-duplicates. When candidate
// vectors are unavailable the plain nearest-neighbor order is returned
// instead. An empty query or a missing collection yields no results.
func (s *Store) Query(ctx context.Context, text string, opts QueryOptions) ([]ScoredSnippet, error) {
	ctx, span := tracer.Start(ctx, "Store.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("limit", opts.Limit),
	)

	limit := opts.Limit
	if strings.TrimSpace(text) == "" || limit <= 0 {
		span.SetStatus(codes.Ok, "empty query")
		return nil, nil
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !exists {
		span.SetStatus(codes.Ok, "no collection")
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) == 0 {
		s.log.Warn("embedder returned no vectors for query text")
		span.SetStatus(codes.Ok, "no query vector")
		return nil, nil
	}
	queryVector := vectors[0]

	fetch := limit
	if !opts.DisableMMR {
		fetch = limit * candidateMultiplier
		if fetch < minCandidates {
			fetch = minCandidates
		}
	}

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(fetch)),
			Filter:         queryFilter(opts),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(!opts.DisableMMR),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	if !opts.DisableMMR {
		points = s.rerank(queryVector, points, limit)
	} else if len(points) > limit {
		points = points[:limit]
	}

	results := make([]ScoredSnippet, 0, len(points))
	for _, p := range points {
		sn, ok := snippetFromPayload(p.GetPayload())
		if !ok {
			s.log.Debug("skipping point with incomplete payload")
			continue
		}
		results = append(results, ScoredSnippet{Snippet: sn, Score: p.GetScore()})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func vectorData(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	vec := vectors.GetVector()
	if vec == nil {
		return nil
	}
	if dense := vec.GetDense(); dense != nil {
		return dense.GetData()
	}
	return vec.GetData()
}

// rerank applies MMR over candidate vectors. Candidates missing vectors
// force a fallback to the store's relevance order.
func (s *Store) rerank(queryVector []float32, points []*qdrant.ScoredPoint, limit int) []*qdrant.ScoredPoint {
	if len(points) <= limit {
		return points
	}
	candidates := make([][]float32, len(points))
	for i, p := range points {
		data := vectorData(p.GetVectors())
		if len(data) == 0 {
			s.log.Debug("candidate vectors unavailable, returning relevance order")
			return points[:limit]
		}
		candidates[i] = data
	}
	picked := maximalMarginalRelevance(queryVector, candidates, mmrLambda, limit)
	out := make([]*qdrant.ScoredPoint, 0, len(picked))
	for _, i := range picked {
		out = append(out, points[i])
	}
	return out
}

// ListCompletedRepositories returns metadata for the repositories whose
// ingests have snippets stored, at most limit of them. A non-positive
// limit falls back to a default cap. Ingests named in excludeIngestIDs
// are dropped after discovery, so exclusion never depends on a payload
// index.
//
// Discovery of distinct ingest IDs degrades through three strategies: a
// facet count on ingest_id, then grouped retrieval, then a paginated
// scroll that stops once limit distinct IDs are seen. A tier that fails
// or finds nothing falls through to the next; only the scroll tier's
// error is surfaced. Discovered ingests whose representative point is
// missing, or carries no repository URL, are skipped.
func (s *Store) ListCompletedRepositories(ctx context.Context, limit int, excludeIngestIDs []string) ([]RepoMetadata, error) {
	ctx, span := tracer.Start(ctx, "Store.ListCompletedRepositories")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	if limit <= 0 {
		limit = defaultDiscoveryLimit
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !exists {
		span.SetStatus(codes.Ok, "no collection")
		return nil, nil
	}

	ids, err := s.listIngestIDs(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing ingests: %w", err)
	}

	excluded := make(map[string]bool, len(excludeIngestIDs))
	for _, id := range excludeIngestIDs {
		excluded[id] = true
	}

	var repos []RepoMetadata
	for _, id := range ids {
		if id == "" || excluded[id] {
			continue
		}
		meta, err := s.ingestSample(ctx, id)
		if err != nil {
			s.log.Debug("skipping ingest without a readable sample",
				zap.String("ingest_id", id), zap.Error(err))
			continue
		}
		if meta == nil {
			s.log.Debug("skipping ingest without stored points", zap.String("ingest_id", id))
			continue
		}
		if meta.RepoURL == "" {
			s.log.Debug("skipping ingest without a repository URL", zap.String("ingest_id", id))
			continue
		}
		meta.IngestID = id
		repos = append(repos, *meta)
	}

	span.SetAttributes(attribute.Int("repo_count", len(repos)))
	span.SetStatus(codes.Ok, "success")
	return repos, nil
}

// listIngestIDs discovers up to limit distinct ingest IDs.
func (s *Store) listIngestIDs(ctx context.Context, limit int) ([]string, error) {
	if ids, err := s.facetIngestIDs(ctx, limit); err == nil && len(ids) > 0 {
		return ids, nil
	} else if err != nil {
		s.log.Debug("facet discovery unavailable, trying grouped retrieval", zap.Error(err))
	}

	if ids, err := s.groupIngestIDs(ctx, limit); err == nil && len(ids) > 0 {
		return ids, nil
	} else if err != nil {
		s.log.Debug("grouped discovery unavailable, falling back to scroll", zap.Error(err))
	}

	return s.scrollIngestIDs(ctx, limit)
}

func (s *Store) facetIngestIDs(ctx context.Context, limit int) ([]string, error) {
	hits, err := s.client.Facet(ctx, &qdrant.FacetCounts{
		CollectionName: s.config.Collection,
		Key:            fieldIngestID,
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if id := hit.GetValue().GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) groupIngestIDs(ctx context.Context, limit int) ([]string, error) {
	groups, err := s.client.QueryGroups(ctx, &qdrant.QueryPointGroups{
		CollectionName: s.config.Collection,
		GroupBy:        fieldIngestID,
		GroupSize:      qdrant.PtrOf(uint64(1)),
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		if id := g.GetId().GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// scrollIngestIDs pages through the collection collecting distinct
// ingest IDs, stopping early once limit IDs are found.
func (s *Store) scrollIngestIDs(ctx context.Context, limit int) ([]string, error) {
	page := limit * 2
	if page > maxScrollPage {
		page = maxScrollPage
	}
	if page < 1 {
		page = 1
	}

	seen := make(map[string]bool)
	var ids []string
	var offset *qdrant.PointId
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(page)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			id := p.GetPayload()[fieldIngestID].GetStringValue()
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if len(ids) >= limit {
				return ids, nil
			}
		}
		if next == nil || len(points) < page {
			break
		}
		offset = next
	}
	return ids, nil
}

// ingestSample fetches one point of an ingest to recover the repository
// metadata all its points share. A nil result means the ingest has no
// stored points.
func (s *Store) ingestSample(ctx context.Context, ingestID string) (*RepoMetadata, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.config.Collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{matchKeyword(fieldIngestID, ingestID)}},
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil || len(points) == 0 {
		return nil, err
	}
	meta := repoMetadataFromPayload(points[0].GetPayload())
	return &meta, nil
}

// GetCompletedRepository returns metadata for one completed ingest, or
// ErrRepositoryNotFound when no stored point carries it.
func (s *Store) GetCompletedRepository(ctx context.Context, ingestID string) (*RepoMetadata, error) {
	ctx, span := tracer.Start(ctx, "Store.GetCompletedRepository")
	defer span.End()
	span.SetAttributes(attribute.String("ingest_id", ingestID))

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !exists {
		span.SetStatus(codes.Ok, "no collection")
		return nil, ErrRepositoryNotFound
	}

	meta, err := s.ingestSample(ctx, ingestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting ingest %s: %w", ingestID, err)
	}
	if meta == nil || meta.RepoURL == "" {
		span.SetStatus(codes.Ok, "not found")
		return nil, ErrRepositoryNotFound
	}
	meta.IngestID = ingestID
	if count, err := s.CountForIngest(ctx, ingestID); err == nil {
		meta.SnippetCount = count
	}
	span.SetStatus(codes.Ok, "success")
	return meta, nil
}

// CountForIngest returns the number of points stored under an ingest ID.
// The count is advisory; a missing collection counts as zero.
func (s *Store) CountForIngest(ctx context.Context, ingestID string) (uint64, error) {
	return s.countWhere(ctx, matchKeyword(fieldIngestID, ingestID))
}

// CountForRepo returns the number of points stored for a repository.
func (s *Store) CountForRepo(ctx context.Context, repoName string) (uint64, error) {
	return s.countWhere(ctx, matchKeyword(fieldRepoName, repoName))
}

func (s *Store) countWhere(ctx context.Context, cond *qdrant.Condition) (uint64, error) {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var count uint64
	err = s.retryOperation(ctx, "count", func() error {
		var err error
		count, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Filter:         &qdrant.Filter{Must: []*qdrant.Condition{cond}},
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return count, nil
}

package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// embeddingInput is the text a snippet is embedded on. Code is stored but
// not embedded; title and description carry the searchable meaning.
func embeddingInput(sn snippet.Snippet) string {
	return sn.Title + "\n\n" + sn.Description
}

// pointID derives a deterministic point ID from the embedding input, so
// re-ingesting an unchanged snippet overwrites its previous point instead
// of duplicating it.
func pointID(input string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(input)).String()
}

func embeddingKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// AddSnippets embeds and upserts snippets, returning the number stored.
//
// If the embedder returns fewer vectors than inputs, the batch is
// truncated to the vectors available rather than failing the ingest.
func (s *Store) AddSnippets(ctx context.Context, snippets []snippet.Snippet) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.AddSnippets")
	defer span.End()
	span.SetAttributes(
		attribute.Int("snippet_count", len(snippets)),
		attribute.String("collection", s.config.Collection),
	)

	if len(snippets) == 0 {
		span.SetStatus(codes.Ok, "empty")
		return 0, nil
	}

	inputs := make([]string, len(snippets))
	for i, sn := range snippets {
		inputs[i] = embeddingInput(sn)
	}

	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	n := len(snippets)
	if len(vectors) < n {
		s.log.Warn("embedder returned fewer vectors than inputs, truncating batch",
			zap.Int("inputs", n),
			zap.Int("vectors", len(vectors)))
		n = len(vectors)
	}
	if n == 0 {
		span.SetStatus(codes.Ok, "no vectors")
		return 0, nil
	}

	if err := s.ensureCollection(ctx, uint64(len(vectors[0]))); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	points := make([]*qdrant.PointStruct, n)
	for i := 0; i < n; i++ {
		input := inputs[i]
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(input)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: snippetPayload(snippets[i], embeddingKey(input)),
		}
	}

	stored := 0
	for start := 0; start < n; start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > n {
			end = n
		}
		batch := points[start:end]
		err := s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.config.Collection,
				Points:         batch,
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return stored, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
		}
		stored += len(batch)
	}

	span.SetAttributes(attribute.Int("points_added", stored))
	span.SetStatus(codes.Ok, "success")
	s.log.Info("stored snippets",
		zap.Int("count", stored),
		zap.String("collection", s.config.Collection))
	return stored, nil
}

// RepoSelector identifies a repository's points for deletion. At least
// one field must be set; a point matching any set field is selected.
type RepoSelector struct {
	RepoName string
	IngestID string
	RepoURL  string
}

func (sel RepoSelector) empty() bool {
	return sel.RepoName == "" && sel.IngestID == "" && sel.RepoURL == ""
}

func (sel RepoSelector) conditions() []*qdrant.Condition {
	var should []*qdrant.Condition
	if sel.RepoName != "" {
		should = append(should, matchKeyword(fieldRepoName, sel.RepoName))
	}
	if sel.IngestID != "" {
		should = append(should, matchKeyword(fieldIngestID, sel.IngestID))
	}
	if sel.RepoURL != "" {
		should = append(should, matchKeyword(fieldRepoURL, sel.RepoURL))
	}
	return should
}

// DeleteRepository removes every point matching the selector. A missing
// collection is a no-op.
func (s *Store) DeleteRepository(ctx context.Context, sel RepoSelector) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteRepository")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo_name", sel.RepoName),
		attribute.String("collection", s.config.Collection),
	)

	if sel.empty() {
		return fmt.Errorf("repo name, ingest id, or repo url required")
	}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !exists {
		span.SetStatus(codes.Ok, "no collection")
		return nil
	}

	err = s.retryOperation(ctx, "delete_repository", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{Should: sel.conditions()},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting repository %s: %w", sel.RepoName, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.log.Info("deleted repository points",
		zap.String("repo_name", sel.RepoName),
		zap.String("ingest_id", sel.IngestID))
	return nil
}

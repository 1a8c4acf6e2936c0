package vectorstore

import (
	"errors"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

// Payload field names for stored snippet points.
const (
	fieldTitle        = "title"
	fieldDescription  = "description"
	fieldLanguage     = "language"
	fieldCode         = "code"
	fieldPath         = "path"
	fieldRepo         = "repo"
	fieldRepoName     = "repo_name"
	fieldRepoURL      = "repo_url"
	fieldIngestID     = "ingest_id"
	fieldEmbeddingKey = "embedding_key"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the Qdrant client could not connect.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrRepositoryNotFound indicates no completed ingest exists for the
	// requested repository.
	ErrRepositoryNotFound = errors.New("repository not found")
)

// ScoredSnippet is a snippet returned from a similarity query.
type ScoredSnippet struct {
	Snippet snippet.Snippet
	Score   float32
}

// RepoMetadata describes one repository with completed ingests, derived
// from stored snippet payloads.
type RepoMetadata struct {
	RepoName     string `json:"repo_name"`
	RepoURL      string `json:"repo_url,omitempty"`
	IngestID     string `json:"ingest_id,omitempty"`
	SnippetCount uint64 `json:"snippet_count,omitempty"`
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func snippetPayload(sn snippet.Snippet, embeddingKey string) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		fieldTitle:        stringValue(sn.Title),
		fieldDescription:  stringValue(sn.Description),
		fieldLanguage:     stringValue(sn.Language),
		fieldCode:         stringValue(sn.Code),
		fieldPath:         stringValue(sn.Path),
		fieldEmbeddingKey: stringValue(embeddingKey),
	}
	if sn.Repo != "" {
		payload[fieldRepo] = stringValue(sn.Repo)
	}
	if sn.RepoName != "" {
		payload[fieldRepoName] = stringValue(sn.RepoName)
	}
	if sn.RepoURL != "" {
		payload[fieldRepoURL] = stringValue(sn.RepoURL)
	}
	if sn.IngestID != "" {
		payload[fieldIngestID] = stringValue(sn.IngestID)
	}
	return payload
}

// snippetFromPayload rebuilds a snippet from a point payload. Returns
// false when the payload lacks the required fields.
func snippetFromPayload(payload map[string]*qdrant.Value) (snippet.Snippet, bool) {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	sn := snippet.Snippet{
		Title:       get(fieldTitle),
		Description: get(fieldDescription),
		Language:    get(fieldLanguage),
		Code:        get(fieldCode),
		Path:        get(fieldPath),
		Repo:        get(fieldRepo),
		RepoName:    get(fieldRepoName),
		RepoURL:     get(fieldRepoURL),
		IngestID:    get(fieldIngestID),
	}
	if err := sn.Validate(); err != nil {
		return snippet.Snippet{}, false
	}
	return sn, true
}

func repoMetadataFromPayload(payload map[string]*qdrant.Value) RepoMetadata {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return RepoMetadata{
		RepoName: get(fieldRepoName),
		RepoURL:  get(fieldRepoURL),
		IngestID: get(fieldIngestID),
	}
}

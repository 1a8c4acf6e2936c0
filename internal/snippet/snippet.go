// Package snippet defines the extracted snippet model and the collector
// that receives snippets reported during an extraction run.
package snippet

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMissingField indicates a snippet with an empty required field.
var ErrMissingField = errors.New("missing required snippet field")

// Snippet is one reusable piece of code surfaced by the extraction
// collaborator. Title, Description, Language, Code, and Path are required
// at creation; repository identity is stamped on after a full ingest.
type Snippet struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Path        string `json:"path"`
	Repo        string `json:"repo,omitempty"`
	RepoName    string `json:"repo_name,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
	IngestID    string `json:"ingest_id,omitempty"`
}

// Validate checks that all required fields are non-empty.
func (s Snippet) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"title", s.Title},
		{"description", s.Description},
		{"language", s.Language},
		{"code", s.Code},
		{"path", s.Path},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

// Collector accumulates snippets reported by concurrent extraction calls.
// It is scoped to a single orchestrator run; a fresh collector per run keeps
// results from leaking across runs.
type Collector struct {
	mu       sync.Mutex
	snippets []Snippet
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add validates and stores a snippet. Safe for concurrent use.
func (c *Collector) Add(s Snippet) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snippets = append(c.snippets, s)
	return nil
}

// Count returns the number of collected snippets.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snippets)
}

// Snippets returns a copy of the collected snippets.
func (c *Collector) Snippets() []Snippet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snippet, len(c.snippets))
	copy(out, c.snippets)
	return out
}

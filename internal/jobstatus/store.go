package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when no record exists for a job ID.
var ErrNotFound = errors.New("jobstatus: record not found")

// KV is the durable substrate behind the store: per-record get/set/delete
// plus a score-ordered index of job IDs. SetRecord and DeleteRecord must
// update the value and the index atomically.
type KV interface {
	// SetRecord writes value under id and indexes id at score.
	SetRecord(ctx context.Context, id string, value []byte, score float64, ttl time.Duration) error
	// GetRecord returns the stored value, or ErrNotFound.
	GetRecord(ctx context.Context, id string) ([]byte, error)
	// DeleteRecord removes the value and its index entry. Deleting a
	// missing record is not an error.
	DeleteRecord(ctx context.Context, id string) error
	// ListIDs returns indexed IDs ordered by descending score.
	ListIDs(ctx context.Context) ([]string, error)
}

// Store implements the job state machine over a KV substrate.
type Store struct {
	kv  KV
	ttl time.Duration
	log *zap.Logger
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets an expiry on every record write. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store over kv.
func NewStore(kv KV, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		kv:  kv,
		log: log,
		now: time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update carries optional fields for a state transition. Empty strings
// leave the existing value in place; a nil Progress leaves progress
// untouched.
type Update struct {
	Message  string
	RepoName string
	Progress *int
}

// CreatePending writes a fresh pending record for the job. An existing
// record under the same ID is overwritten; callers that need to preserve
// in-flight state use EnsureRecord instead.
func (s *Store) CreatePending(ctx context.Context, id, url, repoName string) (*Record, error) {
	now := s.now().UTC()
	rec := &Record{
		ID:        id,
		URL:       url,
		Status:    StatusPending,
		RepoName:  repoName,
		Progress:  progressPtr(0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug("created pending job record",
		zap.String("job_id", id),
		zap.String("url", url))
	return rec, nil
}

// EnsureRecord returns the existing record for id, creating a pending one
// when none exists. Workers call this so a job enqueued before the status
// record was written still gets tracked.
func (s *Store) EnsureRecord(ctx context.Context, id, url, repoName string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreatePending(ctx, id, url, repoName)
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	raw, err := s.kv.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode job record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns all live records, newest first. IDs indexed without a
// backing record (a concurrent delete) are skipped.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	ids, err := s.kv.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkProcessing moves the job to processing. Any prior failure reason is
// cleared.
func (s *Store) MarkProcessing(ctx context.Context, id string, u Update) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Status = StatusProcessing
	rec.FailReason = ""
	s.applyUpdate(rec, u)
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateProgress records forward progress on a processing job. The message
// always replaces the previous one; progress is clamped to [0, 100].
func (s *Store) UpdateProgress(ctx context.Context, id, message string, progress *int) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Status = StatusProcessing
	rec.ProcessMessage = message
	if progress != nil {
		rec.Progress = progressPtr(*progress)
	}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug("updated job progress",
		zap.String("job_id", id),
		zap.String("message", message))
	return rec, nil
}

// MarkCompleted finalizes the job at 100% and deletes its record. The
// returned snapshot is the terminal state the record held before deletion.
func (s *Store) MarkCompleted(ctx context.Context, id, message string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Status = StatusDone
	rec.ProcessMessage = message
	rec.FailReason = ""
	rec.Progress = progressPtr(100)
	rec.UpdatedAt = s.now().UTC()
	if err := s.kv.DeleteRecord(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info("job completed",
		zap.String("job_id", id),
		zap.String("message", message))
	return rec, nil
}

// MarkFailed moves the job to failed. The reason is stored verbatim and
// progress is discarded; the record is retained for inspection.
func (s *Store) MarkFailed(ctx context.Context, id, reason, message string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Status = StatusFailed
	rec.FailReason = reason
	rec.Progress = nil
	if message != "" {
		rec.ProcessMessage = message
	}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Warn("job failed",
		zap.String("job_id", id),
		zap.String("reason", reason))
	return rec, nil
}

// Delete removes the record for id. Deleting a missing record is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.DeleteRecord(ctx, id)
}

func (s *Store) applyUpdate(rec *Record, u Update) {
	if u.Message != "" {
		rec.ProcessMessage = u.Message
	}
	if u.RepoName != "" {
		rec.RepoName = u.RepoName
	}
	if u.Progress != nil {
		rec.Progress = progressPtr(*u.Progress)
	}
}

func (s *Store) write(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job record %s: %w", rec.ID, err)
	}
	score := float64(rec.CreatedAt.UnixNano()) / float64(time.Second)
	return s.kv.SetRecord(ctx, rec.ID, raw, score, s.ttl)
}

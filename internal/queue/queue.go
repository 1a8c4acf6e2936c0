// Package queue carries ingest jobs between the API surface and workers
// over NATS JetStream.
//
// Jobs land on a work-queue stream so each job is delivered to exactly
// one worker, survives worker restarts, and is redelivered when a worker
// fails before acknowledging.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// IngestRequest is one repository ingestion job.
type IngestRequest struct {
	JobID     string   `json:"job_id"`
	SourceURL string   `json:"source_url"`
	RepoName  string   `json:"repo_name,omitempty"`
	Branch    string   `json:"branch,omitempty"`
	Patterns  []string `json:"patterns,omitempty"`
}

// Validate checks required fields.
func (r IngestRequest) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("job id required")
	}
	if r.SourceURL == "" {
		return fmt.Errorf("source url required")
	}
	return nil
}

// Config holds NATS connection and stream settings.
type Config struct {
	URL     string `koanf:"url"`
	Stream  string `koanf:"stream"`
	Subject string `koanf:"subject"`
	Durable string `koanf:"durable"`

	// MaxDeliver bounds delivery attempts per job, counting the first.
	MaxDeliver int `koanf:"max_deliver"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Stream == "" {
		c.Stream = "SNIPPETD_INGEST"
	}
	if c.Subject == "" {
		c.Subject = "snippetd.ingest.jobs"
	}
	if c.Durable == "" {
		c.Durable = "snippetd-workers"
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = 5
	}
}

// Handler processes one ingest request. A non-nil error triggers
// redelivery.
type Handler func(ctx context.Context, req IngestRequest) error

// Queue publishes and consumes ingest jobs on a JetStream work queue.
type Queue struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg Config
	log *zap.Logger

	// ownsConn records whether Close should close the connection.
	ownsConn bool
}

// Connect dials NATS and prepares the ingest stream.
func Connect(cfg Config, log *zap.Logger) (*Queue, error) {
	cfg.ApplyDefaults()
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	q, err := New(nc, cfg, log)
	if err != nil {
		nc.Close()
		return nil, err
	}
	q.ownsConn = true
	return q, nil
}

// New wires a queue over an existing connection and ensures the stream
// exists.
func New(nc *nats.Conn, cfg Config, log *zap.Logger) (*Queue, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	q := &Queue{nc: nc, js: js, cfg: cfg, log: log}
	if err := q.ensureStream(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream() error {
	_, err := q.js.StreamInfo(q.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("checking stream %s: %w", q.cfg.Stream, err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.cfg.Stream,
		Subjects:  []string{q.cfg.Subject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", q.cfg.Stream, err)
	}
	q.log.Info("created ingest stream",
		zap.String("stream", q.cfg.Stream),
		zap.String("subject", q.cfg.Subject))
	return nil
}

// Close drains the connection if this queue opened it.
func (q *Queue) Close() {
	if q.ownsConn && q.nc != nil {
		q.nc.Close()
	}
}

// Enqueue publishes an ingest job.
func (q *Queue) Enqueue(ctx context.Context, req IngestRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid ingest request: %w", err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal ingest request: %w", err)
	}
	if _, err := q.js.Publish(q.cfg.Subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish ingest request: %w", err)
	}
	q.log.Info("enqueued ingest job",
		zap.String("job_id", req.JobID),
		zap.String("source_url", req.SourceURL))
	return nil
}

// Consume pulls jobs and hands them to the handler until the context is
// canceled. Undecodable messages are terminated; handler failures are
// negatively acknowledged for redelivery, up to MaxDeliver attempts.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	sub, err := q.js.PullSubscribe(q.cfg.Subject, q.cfg.Durable,
		nats.BindStream(q.cfg.Stream),
		nats.MaxDeliver(q.cfg.MaxDeliver),
	)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", q.cfg.Subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			q.log.Debug("unsubscribe failed", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetching ingest jobs: %w", err)
		}
		for _, msg := range msgs {
			q.dispatch(ctx, msg, handler)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, msg *nats.Msg, handler Handler) {
	var req IngestRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		q.log.Error("dropping undecodable ingest message", zap.Error(err))
		if err := msg.Term(); err != nil {
			q.log.Debug("term failed", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, req); err != nil {
		q.log.Warn("ingest job failed, scheduling redelivery",
			zap.String("job_id", req.JobID),
			zap.Error(err))
		if err := msg.Nak(); err != nil {
			q.log.Debug("nak failed", zap.Error(err))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		q.log.Debug("ack failed", zap.Error(err))
	}
}

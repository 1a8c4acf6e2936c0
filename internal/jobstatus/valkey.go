package jobstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	recordKeyPrefix = "snippetd:job:"
	indexKey        = "snippetd:jobs:index"
)

// Config holds connection settings for the Valkey-backed store.
type Config struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	TTL      time.Duration `koanf:"ttl"`
}

// ApplyDefaults fills unset fields with sane defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
}

// ValkeyKV implements KV on a Valkey server. Record writes and deletes run
// inside MULTI/EXEC so the record and the index entry never diverge.
type ValkeyKV struct {
	client valkey.Client
}

// NewValkeyKV connects to Valkey and verifies connectivity.
func NewValkeyKV(cfg Config) (*ValkeyKV, error) {
	cfg.ApplyDefaults()
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	ctx := context.Background()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return &ValkeyKV{client: client}, nil
}

// Close releases the underlying connection.
func (v *ValkeyKV) Close() {
	v.client.Close()
}

// SetRecord writes the record value and scores its ID in the index.
func (v *ValkeyKV) SetRecord(ctx context.Context, id string, value []byte, score float64, ttl time.Duration) error {
	key := recordKeyPrefix + id
	set := v.client.B().Set().Key(key).Value(string(value))
	var setCmd valkey.Completed
	if ttl > 0 {
		setCmd = set.Ex(ttl).Build()
	} else {
		setCmd = set.Build()
	}
	cmds := []valkey.Completed{
		v.client.B().Multi().Build(),
		setCmd,
		v.client.B().Zadd().Key(indexKey).ScoreMember().ScoreMember(score, id).Build(),
		v.client.B().Exec().Build(),
	}
	for _, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("write job record %s: %w", id, err)
		}
	}
	return nil
}

// GetRecord returns the stored record bytes, or ErrNotFound.
func (v *ValkeyKV) GetRecord(ctx context.Context, id string) ([]byte, error) {
	resp := v.client.Do(ctx, v.client.B().Get().Key(recordKeyPrefix+id).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read job record %s: %w", id, err)
	}
	return data, nil
}

// DeleteRecord removes the record and its index entry.
func (v *ValkeyKV) DeleteRecord(ctx context.Context, id string) error {
	cmds := []valkey.Completed{
		v.client.B().Multi().Build(),
		v.client.B().Del().Key(recordKeyPrefix + id).Build(),
		v.client.B().Zrem().Key(indexKey).Member(id).Build(),
		v.client.B().Exec().Build(),
	}
	for _, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("delete job record %s: %w", id, err)
		}
	}
	return nil
}

// ListIDs returns job IDs ordered newest first.
func (v *ValkeyKV) ListIDs(ctx context.Context) ([]string, error) {
	resp := v.client.Do(ctx, v.client.B().Zrevrange().Key(indexKey).Start(0).Stop(-1).Build())
	ids, err := resp.AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	return ids, nil
}

package redis

import (
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// emptyMarkerField keeps a record with no fields observable, since Redis drops empty hashes.
	emptyMarkerField = "__clusterdir_empty"

	scanBatchSize = 256
)

// Store keeps every record as a Redis hash at key <prefix><path>. Replacements and
// transactions run inside MULTI/EXEC, so a record is never observed half written.
type Store struct {
	cli    *redis.Client
	prefix string
}

func NewStore(cli *redis.Client, keyPrefix string) *Store {
	return &Store{cli: cli, prefix: keyPrefix}
}

func (s *Store) Read(ctx context.Context, path string) (types.Record, error) {
	out := s.cli.HGetAll(ctx, s.key(path))
	if out.Err() != nil {
		return nil, types.Upstream(out.Err(), "redis read %s", path)
	}
	m := out.Val()
	if len(m) == 0 {
		return nil, types.NotFound("%s", path)
	}
	delete(m, emptyMarkerField)
	return types.Record(m), nil
}

func (s *Store) Write(ctx context.Context, path string, rec types.Record) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, path, rec)
		return nil
	})
	return types.Upstream(err, "redis write %s", path)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	out := s.cli.Del(ctx, s.key(path))
	return types.Upstream(out.Err(), "redis delete %s", path)
}

// List scans for keys below prefix and returns their first path segment; nested
// directories carry a trailing slash.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.key(prefix) + "/"
	seen := make(map[string]struct{})
	iter := s.cli.Scan(ctx, 0, escapeGlob(dir)+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		rest, ok := strings.CutPrefix(iter.Val(), dir)
		if !ok || rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, types.Upstream(err, "redis list %s", prefix)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out, nil
}

// Transact queues all ops in one MULTI/EXEC block.
func (s *Store) Transact(ctx context.Context, ops ...ports.Op) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case ports.OpWrite:
				s.queueWrite(ctx, pipe, op.Path, op.Record)
			case ports.OpDelete:
				pipe.Del(ctx, s.key(op.Path))
			default:
				return fmt.Errorf("unknown op kind %d", op.Kind)
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("ops", len(ops)).Warn("redis transaction failed")
	}
	return types.Upstream(err, "redis transaction")
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) queueWrite(ctx context.Context, pipe redis.Pipeliner, path string, rec types.Record) {
	key := s.key(path)
	fields := make(map[string]interface{}, len(rec)+1)
	for k, v := range rec {
		fields[k] = v
	}
	if len(fields) == 0 {
		fields[emptyMarkerField] = ""
	}
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
}

func (s *Store) key(path string) string {
	return s.prefix + strings.Trim(path, "/")
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

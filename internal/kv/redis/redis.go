// Package redis is a kv.Store on go-redis. Every key is namespaced with a prefix so
// several clients can share one database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

const scanBatch = 100

// Store implements kv.Store against a redis client.
type Store struct {
	client    red.UniversalClient
	prefix    string
	ownClient bool
}

// New wraps an existing client. Close on the returned Store does not close client.
func New(client red.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Dial parses url, connects and pings. The returned Store owns the client.
func Dial(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := red.ParseURL(url)
	if err != nil {
		return nil, kv.Wrap("dial", "", fmt.Errorf("redis parse url: %w", err))
	}
	cli := red.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, kv.Wrap("dial", "", fmt.Errorf("redis ping: %w (close: %v)", err, closeErr))
		}
		return nil, kv.Wrap("dial", "", fmt.Errorf("redis ping: %w", err))
	}
	return &Store{client: cli, prefix: prefix, ownClient: true}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, red.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kv.Wrap("get", key, err)
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return kv.Wrap("put", key, s.client.Set(ctx, s.key(key), value, 0).Err())
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, 0).Result()
	if err != nil {
		return false, kv.Wrap("put_if_absent", key, err)
	}
	return ok, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return kv.Wrap("delete", key, s.client.Del(ctx, s.key(key)).Err())
}

// List walks the keyspace with SCAN so large databases are not blocked.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.key(prefix)) + "*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, kv.Wrap("list", prefix, err)
		}
		for _, k := range batch {
			if full := s.key(prefix); strings.HasPrefix(k, full) {
				keys = append(keys, strings.TrimPrefix(k, s.prefix))
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return dedupe(keys), nil
}

func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

// SCAN may return a key more than once.
func dedupe(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

package savedroutes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// FileBackend stores the collection as <Dir>/<Namespace>.json.
type FileBackend struct {
	Dir       string
	Namespace string
}

func (b FileBackend) path() string {
	ns := b.Namespace
	if ns == "" {
		ns = Namespace
	}
	return filepath.Join(b.Dir, ns+".json")
}

// Load reads the file. A missing file is an empty collection.
func (b FileBackend) Load(ctx context.Context) ([]SavedRoute, error) {
	raw, err := os.ReadFile(b.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read saved routes: %w", err)
	}
	return decodeRoutes(raw)
}

// Save writes to a temp file and renames it over the old one.
func (b FileBackend) Save(ctx context.Context, routes []SavedRoute) error {
	raw, err := encodeRoutes(routes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("create saved routes dir: %w", err)
	}

	tmp, err := os.CreateTemp(b.Dir, ".saved-routes-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write saved routes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close saved routes: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path()); err != nil {
		return fmt.Errorf("replace saved routes: %w", err)
	}
	return nil
}

// RedisBackend stores the collection as one JSON value without expiry.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend stores under namespace, or Namespace when empty.
func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = Namespace
	}
	return &RedisBackend{client: client, key: namespace}
}

// Load reads the key. A missing key is an empty collection.
func (b *RedisBackend) Load(ctx context.Context) ([]SavedRoute, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return decodeRoutes(raw)
}

// Save overwrites the key.
func (b *RedisBackend) Save(ctx context.Context, routes []SavedRoute) error {
	raw, err := encodeRoutes(routes)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func encodeRoutes(routes []SavedRoute) ([]byte, error) {
	if routes == nil {
		routes = []SavedRoute{}
	}
	raw, err := json.Marshal(routes)
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return raw, nil
}

func decodeRoutes(raw []byte) ([]SavedRoute, error) {
	var routes []SavedRoute
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, fmt.Errorf("decode saved routes: %w", err)
	}
	return routes, nil
}

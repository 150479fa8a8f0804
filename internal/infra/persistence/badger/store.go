package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/config"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// ErrKeyNotFound 键不存在
var ErrKeyNotFound = errors.New("key not found")

// record 持久化的一条键值,Value 为 JSON
type record struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KVStore 基于 badgerhold 的键值存储,值以 JSON 保存
type KVStore interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Close() error
}

type kvStore struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

func InitKVStore(cfg *config.Config, logger arbor.ILogger) (KVStore, error) {
	options := badgerhold.DefaultOptions
	if cfg.Badger.InMemory {
		options.Options = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Badger.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		options.Dir = cfg.Badger.Path
		options.ValueDir = cfg.Badger.Path
	}
	// 关闭 badger 自带日志,统一使用 arbor
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug().Str("path", cfg.Badger.Path).Bool("in_memory", cfg.Badger.InMemory).Msg("Badger store opened")
	return &kvStore{store: store, logger: logger}, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *kvStore) Get(_ context.Context, key string, out any) error {
	var rec record
	err := s.store.Get(normalizeKey(key), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if err := json.Unmarshal(rec.Value, out); err != nil {
		return fmt.Errorf("failed to decode value of %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value of %s: %w", key, err)
	}
	k := normalizeKey(key)
	rec := record{Key: k, Value: data, UpdatedAt: time.Now()}
	if err := s.store.Upsert(k, &rec); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Remove(_ context.Context, key string) error {
	err := s.store.Delete(normalizeKey(key), &record{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

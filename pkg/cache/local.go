package cache

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// LocalCache 进程内缓存，位于 Redis 之前作为一级缓存
type LocalCache struct {
	bc *bigcache.BigCache
}

// NewLocal ttl 为条目生存时间
func NewLocal(ctx context.Context, ttl time.Duration) (*LocalCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.CleanWindow = time.Minute
	cfg.MaxEntriesInWindow = 10_000
	cfg.Verbose = false
	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &LocalCache{bc: bc}, nil
}

// Get 未命中返回 (nil, false)
func (l *LocalCache) Get(key string) ([]byte, bool) {
	v, err := l.bc.Get(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set 写入条目
func (l *LocalCache) Set(key string, value []byte) error {
	return l.bc.Set(key, value)
}

// Delete 删除条目，不存在时不报错
func (l *LocalCache) Delete(key string) error {
	if err := l.bc.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Close 停止后台清理
func (l *LocalCache) Close() error {
	return l.bc.Close()
}

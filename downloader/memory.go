package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Serves files from memory.
type Memory struct {
	Files map[string][]byte
}

func NewMemory(files map[string][]byte) *Memory {
	return &Memory{Files: files}
}

func (m *Memory) Get(ctx context.Context, name string) ([]byte, error) {
	body, found := m.Files[name]
	if !found {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return body, nil
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	return sortedNames(names), nil
}

// Caches another Downloader's files in memory for TTL.
type CachingDownloader struct {
	mutex sync.Mutex
	cache map[string]downloaderCacheEntry

	source Downloader
	ttl    time.Duration

	TimeNow func() time.Time
}

func NewCachingDownloader(source Downloader, ttl time.Duration) *CachingDownloader {
	return &CachingDownloader{
		cache:   make(map[string]downloaderCacheEntry),
		source:  source,
		ttl:     ttl,
		TimeNow: time.Now,
	}
}

type downloaderCacheEntry struct {
	data       []byte
	expiration time.Time
}

func (d *CachingDownloader) Get(ctx context.Context, name string) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, ok := d.cache[name]; ok {
		if entry.expiration.After(d.TimeNow()) {
			return entry.data, nil
		}
	}

	body, err := d.source.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	d.cache[name] = downloaderCacheEntry{
		data:       body,
		expiration: d.TimeNow().Add(d.ttl),
	}

	return body, nil
}

// Lists the underlying source, if it can be listed.
func (d *CachingDownloader) List(ctx context.Context) ([]string, error) {
	lister, ok := d.source.(Lister)
	if !ok {
		return nil, fmt.Errorf("source can't list its files")
	}
	return lister.List(ctx)
}

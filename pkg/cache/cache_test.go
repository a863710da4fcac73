package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// SHA-256 produces 64 hex chars
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

// exercise runs the behaviour every storing backend must share.
func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "@types/lodash"); err != nil || hit {
		t.Fatalf("Get on empty cache = hit %v, err %v", hit, err)
	}

	if err := c.Set(ctx, "@types/lodash", []byte("1"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "@types/lodash")
	if err != nil || !hit {
		t.Fatalf("Get after Set = hit %v, err %v", hit, err)
	}
	if string(data) != "1" {
		t.Errorf("Get = %q, want %q", data, "1")
	}

	// Overwrite
	if err := c.Set(ctx, "@types/lodash", []byte("0"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, _, _ = c.Get(ctx, "@types/lodash")
	if string(data) != "0" {
		t.Errorf("Get after overwrite = %q, want %q", data, "0")
	}

	if err := c.Delete(ctx, "@types/lodash"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "@types/lodash"); hit {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of missing key error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry = hit %v, err %v; want miss", hit, err)
	}
}

func TestFileCacheSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, _ := NewFileCache(dir)
	b, _ := NewFileCache(dir)

	_ = a.Set(ctx, "@types/react", []byte("1"), time.Hour)
	if data, hit, _ := b.Get(ctx, "@types/react"); !hit || string(data) != "1" {
		t.Errorf("second instance Get = %q, %v", data, hit)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("1"), 0)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("Clear should remove entries")
	}
	if _, err := os.Stat(c.Dir()); err != nil {
		t.Errorf("Clear should keep the directory: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(16)
	if err != nil {
		t.Fatalf("NewMemoryCache error: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewMemoryCache(4)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, expired entry should be evicted", c.Len())
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := NewMemoryCache(2)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("1"), 0)
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", []byte("1"), 0)

	if _, hit, _ := c.Get(ctx, "b"); hit {
		t.Error("b should have been evicted")
	}
	if _, hit, _ := c.Get(ctx, "a"); !hit {
		t.Error("a was recently used and should remain")
	}
}

func TestMemoryCacheCopiesInput(t *testing.T) {
	ctx := context.Background()
	c, _ := NewMemoryCache(0)
	buf := []byte("1")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = '0'
	if data, _, _ := c.Get(ctx, "k"); string(data) != "1" {
		t.Errorf("Get = %q, stored value should not alias caller memory", data)
	}
}

func TestMemoryCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	c, _ := NewMemoryCache(64)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for range 100 {
				_ = c.Set(ctx, key, []byte{1}, time.Hour)
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 8 {
		t.Errorf("Len = %d, want 8", c.Len())
	}
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	inner, _ := NewMemoryCache(8)
	types := WithPrefix(inner, "types:")
	exercise(t, types)

	_ = types.Set(ctx, "lodash", []byte("1"), 0)
	if _, hit, _ := inner.Get(ctx, "types:lodash"); !hit {
		t.Error("prefixed key should be stored in inner cache")
	}
	if _, hit, _ := inner.Get(ctx, "lodash"); hit {
		t.Error("unprefixed key should not exist")
	}
}

func TestWithPrefixNilInner(t *testing.T) {
	c := WithPrefix(nil, "x:")
	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Errorf("Set error: %v", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		check   func(Cache) bool
	}{
		{"empty is none", Options{}, false, func(c Cache) bool { _, ok := c.(*NullCache); return ok }},
		{"none", Options{Backend: BackendNone}, false, func(c Cache) bool { _, ok := c.(*NullCache); return ok }},
		{"memory", Options{Backend: BackendMemory}, false, func(c Cache) bool { _, ok := c.(*MemoryCache); return ok }},
		{"file", Options{Backend: BackendFile, Dir: t.TempDir()}, false, func(c Cache) bool { _, ok := c.(*FileCache); return ok }},
		{"file without dir", Options{Backend: BackendFile}, true, nil},
		{"redis", Options{Backend: BackendRedis, RedisURL: "redis://localhost:6379/0"}, false, func(c Cache) bool { _, ok := c.(*RedisCache); return ok }},
		{"redis without url", Options{Backend: BackendRedis}, true, nil},
		{"redis bad url", Options{Backend: BackendRedis, RedisURL: "http://nope"}, true, nil},
		{"unknown", Options{Backend: "memcached"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer c.Close()
			if !tt.check(c) {
				t.Errorf("Open() returned %T", c)
			}
		})
	}
}

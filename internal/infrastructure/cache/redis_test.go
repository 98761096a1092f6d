package cache

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/lumina/internal/imaging/watermark"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestRedisLogoCache_SetThenGet(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisLogoCache(client)
	ctx := context.Background()
	logo := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0xff}

	if err := cache.Set(ctx, "logo:abc", logo, 10*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "logo:abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, logo) {
		t.Errorf("Get = %v, want %v", got, logo)
	}

	if ttl := mr.TTL("logo:abc"); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want %v", ttl, 10*time.Minute)
	}
}

func TestRedisLogoCache_Get_CacheMiss(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	got, err := NewRedisLogoCache(client).Get(context.Background(), "logo:missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for cache miss, got %v", got)
	}
}

func TestRedisLogoCache_Expiry(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisLogoCache(client)
	ctx := context.Background()

	if err := cache.Set(ctx, "logo:short", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "logo:short")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired entry to miss, got %v", got)
	}
}

func TestRedisLogoCache_Delete(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisLogoCache(client)
	ctx := context.Background()

	if err := cache.Set(ctx, "logo:gone", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Delete(ctx, "logo:gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("logo:gone") {
		t.Error("key still exists after Delete")
	}

	// Deleting again is not an error.
	if err := cache.Delete(ctx, "logo:gone"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestRedisLogoCache_ServerDown(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisLogoCache(client)
	mr.Close()

	_, err := cache.Get(context.Background(), "logo:any")
	if err == nil || !strings.Contains(err.Error(), "redis get") {
		t.Errorf("Get error = %v, want redis get error", err)
	}

	err = cache.Set(context.Background(), "logo:any", []byte("x"), time.Minute)
	if err == nil || !strings.Contains(err.Error(), "redis set") {
		t.Errorf("Set error = %v, want redis set error", err)
	}
}

// The cached source sits in front of Redis in the worker; this checks the
// two fit together and that a second fetch is served from Redis.
func TestRedisLogoCache_BacksCachedLogoSource(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	src := &countingSource{data: []byte("logo-bytes")}
	cached := watermark.NewCachedLogoSource(src, NewRedisLogoCache(client), nil, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cached.Fetch(ctx, "https://cdn.example.com/logo.png")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if string(got) != "logo-bytes" {
			t.Errorf("Fetch = %q, want %q", got, "logo-bytes")
		}
	}

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	if keys := mr.Keys(); len(keys) != 1 || !strings.HasPrefix(keys[0], "logo:") {
		t.Errorf("redis keys = %v, want one logo: key", keys)
	}
}

type countingSource struct {
	calls int
	data  []byte
}

func (s *countingSource) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	return s.data, nil
}

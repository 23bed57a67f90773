package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newMiniredisProvider(t *testing.T) (*ValkeyProvider, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	provider, err := NewValkeyProvider(ValkeyConfig{Addr: mr.Addr(), KeyPrefix: "corr"})
	if err != nil {
		t.Fatalf("NewValkeyProvider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Close() })
	return provider, mr
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	provider, mr := newMiniredisProvider(t)
	ctx := context.Background()

	if _, err := provider.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
	if err := provider.Set(ctx, "graph:t1:api", []byte(`[1]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("corr:graph:t1:api") {
		t.Fatalf("expected prefixed key in server, keys=%v", mr.Keys())
	}
	got, err := provider.Get(ctx, "graph:t1:api")
	if err != nil || string(got) != `[1]` {
		t.Fatalf("Get returned %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := provider.Get(ctx, "graph:t1:api"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestValkeyProviderSetNXAndDel(t *testing.T) {
	provider, _ := newMiniredisProvider(t)
	ctx := context.Background()

	ok, err := provider.SetNX(ctx, "lock", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v", ok, err)
	}
	ok, err = provider.SetNX(ctx, "lock", []byte("b"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v", ok, err)
	}
	if err := provider.Del(ctx, "lock"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := provider.Get(ctx, "lock"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after Del, got %v", err)
	}
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestValkeyProviderFromClientWithoutPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	provider := NewValkeyProviderFromClient(client, "")
	t.Cleanup(func() { _ = provider.Close() })

	if err := provider.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := mr.Get("k"); v != "v" {
		t.Fatalf("expected raw key, got %q", v)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), time.Second)
	if got, err := m.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
	ok, _ := m.SetNX(ctx, "k", []byte("w"), 0)
	if !ok {
		t.Fatal("SetNX should succeed on expired key")
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	_ = p.Set(context.Background(), "k", []byte("v"), time.Minute)
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	type entry struct {
		Name  string   `json:"name"`
		Peers []string `json:"peers"`
	}
	if err := SetJSON(ctx, p, "svc", entry{Name: "checkout", Peers: []string{"payments"}}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var got entry
	if err := GetJSON(ctx, p, "svc", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Name != "checkout" || len(got.Peers) != 1 {
		t.Fatalf("unexpected entry %+v", got)
	}

	if err := GetJSON(ctx, p, "absent", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	_ = p.Set(ctx, "corrupt", []byte("{not json"), time.Minute)
	if err := GetJSON(ctx, p, "corrupt", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("corrupt entry should read as a miss, got %v", err)
	}
	if _, err := p.Get(ctx, "corrupt"); !errors.Is(err, ErrCacheMiss) {
		t.Fatal("corrupt entry should be evicted")
	}

	var noop NoopProvider
	if err := SetJSON(ctx, noop, "k", 1, time.Minute); err != nil {
		t.Fatalf("noop set: %v", err)
	}
	if err := GetJSON(ctx, noop, "k", new(int)); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop should always miss, got %v", err)
	}
}

package storage

import (
	"context"
	"reflect"
	"testing"
)

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatal("want error for unknown driver")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewCacheStore(newTestBackend(t))

	type state struct {
		Counter int      `json:"counter"`
		Seen    []string `json:"seen"`
	}

	var missing state
	ok, err := cache.Load(ctx, "news", &missing)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if ok {
		t.Fatal("missing cache reported as present")
	}

	want := state{Counter: 3, Seen: []string{"a", "b"}}
	if err := cache.Save(ctx, "news", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got state
	ok, err = cache.Load(ctx, "news", &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestCacheIsPerSite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache := NewCacheStore(newTestBackend(t))

	if err := cache.Save(ctx, "news", map[string]int{"n": 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var other map[string]int
	ok, err := cache.Load(ctx, "forum", &other)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("cache leaked across sites")
	}
}

func TestClosedBackendRejectsWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := openFile(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b.Close()
	if err := b.SaveDedup(ctx, DedupState{}); err == nil {
		t.Fatal("want error after Close")
	}
}

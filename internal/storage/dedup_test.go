package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"sitewatch/pkg/logx"
)

func newTestBackend(t *testing.T) Backend {
	t.Helper()
	b, err := openFile(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestDedupCheckAndRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewDedupStore(ctx, newTestBackend(t), 0, logx.Nop())

	if s.CheckAndRecord(ctx, "news", "hello") {
		t.Fatal("fresh message reported as duplicate")
	}
	if !s.CheckAndRecord(ctx, "news", "hello") {
		t.Fatal("repeated message not reported as duplicate")
	}
	if s.CheckAndRecord(ctx, "forum", "hello") {
		t.Fatal("dedup leaked across sites")
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewDedupStore(ctx, newTestBackend(t), DefaultDedupWindow, logx.Nop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Record(ctx, "news", "hello")

	s.now = func() time.Time { return base.Add(DefaultDedupWindow - time.Minute) }
	if !s.IsDuplicate("news", "hello") {
		t.Fatal("entry expired before the window elapsed")
	}

	s.now = func() time.Time { return base.Add(DefaultDedupWindow + time.Minute) }
	if s.IsDuplicate("news", "hello") {
		t.Fatal("entry survived past the window")
	}
}

func TestDedupIsDuplicateDoesNotRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewDedupStore(ctx, newTestBackend(t), 0, logx.Nop())

	if s.IsDuplicate("news", "hello") {
		t.Fatal("unseen message reported as duplicate")
	}
	if s.IsDuplicate("news", "hello") {
		t.Fatal("IsDuplicate recorded as a side effect")
	}
}

func TestDedupPersistsAcrossReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newTestBackend(t)

	s := NewDedupStore(ctx, backend, 0, logx.Nop())
	s.Record(ctx, "news", "hello")

	s2 := NewDedupStore(ctx, backend, 0, logx.Nop())
	if !s2.IsDuplicate("news", "hello") {
		t.Fatal("recorded entry lost after reload")
	}
}

func TestDedupConcurrentCheckAndRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewDedupStore(ctx, newTestBackend(t), 0, logx.Nop())

	const workers = 16
	var wg sync.WaitGroup
	fresh := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.CheckAndRecord(ctx, "news", "hello") {
				fresh <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(fresh)
	if got := len(fresh); got != 1 {
		t.Fatalf("want exactly one fresh result, got %d", got)
	}
}

func TestHashMessageIsLowercaseHex(t *testing.T) {
	t.Parallel()
	h := HashMessage("hello")
	if len(h) != 64 {
		t.Fatalf("digest length = %d, want 64", len(h))
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("digest contains %q", c)
		}
	}
}

package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitewatch/internal/eventbus"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
)

func newDedup(t *testing.T) *storage.DedupStore {
	t.Helper()
	backend, err := storage.Open(storage.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return storage.NewDedupStore(context.Background(), backend, 0, logx.Nop())
}

func subscribers(sessions ...string) []storage.Subscriber {
	out := make([]storage.Subscriber, len(sessions))
	for i, sess := range sessions {
		out[i] = storage.Subscriber{
			Key:     storage.Key{ID: sess},
			Session: sess,
		}
	}
	return out
}

func TestDeliverSendsToAll(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var got []string
	sender := transport.SenderFunc(func(_ context.Context, session, text string) error {
		mu.Lock()
		got = append(got, session)
		mu.Unlock()
		return nil
	})
	svc := New(Config{}, sender, newDedup(t), eventbus.New(), logx.Nop())

	res := svc.DeliverResult(context.Background(), "news", "update", subscribers("a", "b", "c"))
	if res.Duplicate || res.Sent != 3 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(got) != 3 {
		t.Fatalf("sent to %d subscribers, want 3", len(got))
	}
}

func TestDeliverSuppressesDuplicate(t *testing.T) {
	t.Parallel()
	var sends atomic.Int32
	sender := transport.SenderFunc(func(context.Context, string, string) error {
		sends.Add(1)
		return nil
	})
	svc := New(Config{}, sender, newDedup(t), eventbus.New(), logx.Nop())

	ctx := context.Background()
	first := svc.DeliverResult(ctx, "news", "same text", subscribers("a"))
	second := svc.DeliverResult(ctx, "news", "same text", subscribers("a"))

	if first.Duplicate {
		t.Fatal("first delivery marked duplicate")
	}
	if !second.Duplicate {
		t.Fatal("second delivery not suppressed")
	}
	if got := sends.Load(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestDeliverDedupIsPerSite(t *testing.T) {
	t.Parallel()
	sender := transport.SenderFunc(func(context.Context, string, string) error { return nil })
	svc := New(Config{}, sender, newDedup(t), eventbus.New(), logx.Nop())

	ctx := context.Background()
	svc.DeliverResult(ctx, "news", "same text", subscribers("a"))
	res := svc.DeliverResult(ctx, "forum", "same text", subscribers("a"))
	if res.Duplicate {
		t.Fatal("dedup leaked across sites")
	}
}

func TestDeliverSkipsMissingSession(t *testing.T) {
	t.Parallel()
	var sends atomic.Int32
	sender := transport.SenderFunc(func(context.Context, string, string) error {
		sends.Add(1)
		return nil
	})
	svc := New(Config{}, sender, newDedup(t), eventbus.New(), logx.Nop())

	subs := []storage.Subscriber{
		{Key: storage.Key{ID: "a"}, Session: "telegram:1"},
		{Key: storage.Key{ID: "ghost"}},
		{Key: storage.Key{ID: "b"}, Session: "telegram:2"},
	}
	res := svc.DeliverResult(context.Background(), "news", "update", subs)
	if res.Sent != 2 || res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if got := sends.Load(); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
}

func TestDeliverIsolatesFailures(t *testing.T) {
	t.Parallel()
	sender := transport.SenderFunc(func(_ context.Context, session, _ string) error {
		if session == "bad" {
			return errors.New("send refused")
		}
		return nil
	})
	svc := New(Config{}, sender, newDedup(t), eventbus.New(), logx.Nop())

	res := svc.DeliverResult(context.Background(), "news", "update", subscribers("a", "bad", "b"))
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestDeliverBatchesSequentially(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32
	sender := transport.SenderFunc(func(context.Context, string, string) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	svc := New(Config{BatchSize: 2}, sender, newDedup(t), eventbus.New(), logx.Nop())

	res := svc.DeliverResult(context.Background(), "news", "update", subscribers("a", "b", "c", "d", "e"))
	if res.Sent != 5 {
		t.Fatalf("sent = %d, want 5", res.Sent)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrent sends = %d, want <= 2", got)
	}
}

func TestDeliverRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	sender := transport.SenderFunc(func(context.Context, string, string) error {
		if calls.Add(1) < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	svc := New(Config{RetryMax: 2}, sender, newDedup(t), eventbus.New(), logx.Nop())

	res := svc.DeliverResult(context.Background(), "news", "update", subscribers("a"))
	if res.Failed != 0 || res.Sent != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

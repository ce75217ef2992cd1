package example

import (
	"context"
	"fmt"
	"testing"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

func TestCheckUpdatesCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend, err := storage.Open(storage.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer backend.Close()
	s := New(storage.NewCacheStore(backend), logx.Nop(), Options{})

	for i := 1; i <= 3; i++ {
		msgs, err := s.CheckUpdates(ctx)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		want := fmt.Sprintf("Example Update #%d", i)
		if len(msgs) != 1 || msgs[0] != want {
			t.Fatalf("check %d = %v, want [%s]", i, msgs, want)
		}
	}
}

func TestScheduleOverride(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop(), Options{Schedule: "interval:300"})
	if got := s.Schedule(); got != "interval:300" {
		t.Fatalf("Schedule = %q", got)
	}
}

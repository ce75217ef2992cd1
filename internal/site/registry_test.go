package site

import (
	"context"
	"errors"
	"testing"

	"sitewatch/pkg/logx"
)

type fakeSite struct {
	id       string
	display  string
	schedule string
	panicOn  string
}

func (f *fakeSite) ID() string {
	if f.panicOn == "id" {
		panic("boom")
	}
	return f.id
}

func (f *fakeSite) DisplayName() string {
	if f.panicOn == "display" {
		panic("boom")
	}
	return f.display
}

func (f *fakeSite) Description() string { return "fake site" }

func (f *fakeSite) Schedule() string {
	if f.schedule != "" {
		return f.schedule
	}
	return "interval:60"
}

func (f *fakeSite) CheckUpdates(context.Context) ([]string, error) { return nil, nil }

func TestRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		site Site
	}{
		{"nil site", nil},
		{"empty id", &fakeSite{id: "", display: "X"}},
		{"reserved id", &fakeSite{id: "all", display: "X"}},
		{"whitespace id", &fakeSite{id: "a b", display: "X"}},
		{"empty display", &fakeSite{id: "x", display: " "}},
		{"panicking id", &fakeSite{panicOn: "id"}},
		{"panicking display", &fakeSite{id: "x", panicOn: "display"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry(logx.Nop())
			err := r.Register(tt.site)
			var regErr *RegistrationError
			if !errors.As(err, &regErr) {
				t.Fatalf("want RegistrationError, got %v", err)
			}
			if len(r.List()) != 0 {
				t.Fatal("invalid site ended up registered")
			}
		})
	}
}

func TestRegisterDuplicateReplaces(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	first := &fakeSite{id: "news", display: "News v1"}
	second := &fakeSite{id: "news", display: "News v2"}

	if err := r.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}
	got, ok := r.Get("news")
	if !ok || got != Site(second) {
		t.Fatal("later registration did not replace earlier one")
	}
	if len(r.List()) != 1 {
		t.Fatalf("List length = %d, want 1", len(r.List()))
	}
}

func TestListOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	for _, id := range []string{"c", "a", "b"} {
		if err := r.Register(&fakeSite{id: id, display: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	var got []string
	for _, s := range r.List() {
		got = append(got, s.ID())
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List order = %v, want %v", got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	if err := r.Register(&fakeSite{id: "hn", display: "Hacker News"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"hn", "hn", true},
		{"Hacker News", "hn", true},
		{"hacker news", "hn", true},
		{"all", "all", true},
		{"ALL", "all", true},
		{"nope", "", false},
	}
	for _, tt := range tests {
		id, ok := r.Resolve(tt.in)
		if id != tt.wantID || ok != tt.wantOK {
			t.Fatalf("Resolve(%q) = %q, %v; want %q, %v", tt.in, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	if err := r.Register(&fakeSite{id: "news", display: "News"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Unregister("news") {
		t.Fatal("unregister of registered site failed")
	}
	if r.Unregister("news") {
		t.Fatal("second unregister reported success")
	}
	if _, ok := r.Get("news"); ok {
		t.Fatal("site still resolvable after unregister")
	}
}

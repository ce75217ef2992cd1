// Package example is a self-contained demo site. It produces a
// numbered update on every check, which makes it handy for verifying
// the subscription and delivery pipeline end to end.
package example

import (
	"context"
	"fmt"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

const defaultSchedule = "interval:10"

type state struct {
	Counter int `json:"counter"`
}

type Options struct {
	// Schedule overrides the default check cadence.
	Schedule string `json:"-"`
}

type Site struct {
	cache    *storage.CacheStore
	log      logx.Logger
	schedule string
}

func New(cache *storage.CacheStore, log logx.Logger, opts Options) *Site {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Site{
		cache:    cache,
		log:      log.With(logx.String("site", "example")),
		schedule: schedule,
	}
}

func (s *Site) ID() string          { return "example" }
func (s *Site) DisplayName() string { return "Example" }
func (s *Site) Description() string { return "Demo site that produces a numbered update each check" }
func (s *Site) Schedule() string    { return s.schedule }

func (s *Site) CheckUpdates(ctx context.Context) ([]string, error) {
	var st state
	if _, err := s.cache.Load(ctx, s.ID(), &st); err != nil {
		return nil, err
	}
	st.Counter++
	if err := s.cache.Save(ctx, s.ID(), st); err != nil {
		return nil, err
	}
	s.log.Debug("produced update", logx.Int("counter", st.Counter))
	return []string{fmt.Sprintf("Example Update #%d", st.Counter)}, nil
}

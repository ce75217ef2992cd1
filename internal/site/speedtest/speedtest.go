// Package speedtest watches the machine's own connection quality. It
// runs a bandwidth measurement on each check and notifies subscribers
// when throughput shifts past a threshold, which makes degradations on
// the box running the bot visible in the same channel as site updates.
package speedtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

const (
	defaultSchedule = "0 */6 * * *"

	// defaultThreshold is the relative change in download or upload
	// throughput that triggers a notification.
	defaultThreshold = 0.30
)

// Measurement is one completed bandwidth test.
type Measurement struct {
	DownloadMbps float64   `json:"download_mbps"`
	UploadMbps   float64   `json:"upload_mbps"`
	LatencyMS    int64     `json:"latency_ms"`
	Server       string    `json:"server"`
	At           time.Time `json:"at"`
}

// runner performs the actual measurement; swapped out in tests.
type runner func(ctx context.Context) (Measurement, error)

// Options come from the site's config block; fields tagged "-" are
// host-supplied.
type Options struct {
	// Schedule overrides the default check cadence.
	Schedule string `json:"-"`

	// Threshold overrides the relative change that triggers a
	// notification.
	Threshold float64 `json:"threshold,omitempty"`
}

type Site struct {
	cache     *storage.CacheStore
	log       logx.Logger
	schedule  string
	threshold float64
	run       runner
}

func New(cache *storage.CacheStore, log logx.Logger, opts Options) *Site {
	s := &Site{
		cache:     cache,
		log:       log.With(logx.String("site", "speedtest")),
		schedule:  opts.Schedule,
		threshold: opts.Threshold,
	}
	if s.schedule == "" {
		s.schedule = defaultSchedule
	}
	if s.threshold <= 0 {
		s.threshold = defaultThreshold
	}
	s.run = s.measure
	return s
}

func (s *Site) ID() string          { return "speedtest" }
func (s *Site) DisplayName() string { return "Speedtest" }
func (s *Site) Description() string { return "Bandwidth changes on the host connection" }
func (s *Site) Schedule() string    { return s.schedule }

func (s *Site) CheckUpdates(ctx context.Context) ([]string, error) {
	cur, err := s.run(ctx)
	if err != nil {
		return nil, err
	}

	var prev Measurement
	had, err := s.cache.Load(ctx, s.ID(), &prev)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, s.ID(), cur); err != nil {
		return nil, err
	}
	s.log.Debug("measurement recorded",
		logx.Float64("download_mbps", cur.DownloadMbps),
		logx.Float64("upload_mbps", cur.UploadMbps),
		logx.Int64("latency_ms", cur.LatencyMS))

	if !had {
		return nil, nil
	}
	if !exceeds(prev.DownloadMbps, cur.DownloadMbps, s.threshold) &&
		!exceeds(prev.UploadMbps, cur.UploadMbps, s.threshold) {
		return nil, nil
	}
	msg := fmt.Sprintf(
		"Bandwidth changed:\ndown %.1f -> %.1f Mbps\nup %.1f -> %.1f Mbps\nping %d ms via %s",
		prev.DownloadMbps, cur.DownloadMbps,
		prev.UploadMbps, cur.UploadMbps,
		cur.LatencyMS, cur.Server)
	return []string{msg}, nil
}

func exceeds(prev, cur, threshold float64) bool {
	if prev <= 0 {
		return cur > 0
	}
	return math.Abs(cur-prev)/prev >= threshold
}

// measure runs one full test against the lowest-latency nearby server.
// A fresh client per run avoids the package-level data manager holding
// large buffers between runs.
func (s *Site) measure(ctx context.Context) (Measurement, error) {
	client := st.New()
	defer client.Reset()

	if _, err := client.FetchUserInfoContext(ctx); err != nil {
		return Measurement{}, fmt.Errorf("speedtest: fetch user info: %w", err)
	}
	servers, err := client.FetchServerListContext(ctx)
	if err != nil {
		return Measurement{}, fmt.Errorf("speedtest: fetch servers: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return Measurement{}, fmt.Errorf("speedtest: no servers available")
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].Distance < servers[j].Distance
	})

	srv := servers[0]
	if err := srv.PingTestContext(ctx, nil); err != nil {
		return Measurement{}, fmt.Errorf("speedtest: ping %s: %w", srv.Host, err)
	}
	if err := srv.DownloadTestContext(ctx); err != nil {
		return Measurement{}, fmt.Errorf("speedtest: download via %s: %w", srv.Host, err)
	}
	if err := srv.UploadTestContext(ctx); err != nil {
		return Measurement{}, fmt.Errorf("speedtest: upload via %s: %w", srv.Host, err)
	}
	return Measurement{
		DownloadMbps: srv.DLSpeed.Mbps(),
		UploadMbps:   srv.ULSpeed.Mbps(),
		LatencyMS:    srv.Latency.Milliseconds(),
		Server:       srv.Sponsor,
		At:           time.Now(),
	}, nil
}

// Package notifier fans site updates out to subscribers: one dedup
// decision per message, then batched concurrent sends.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sitewatch/internal/eventbus"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport"
	"sitewatch/pkg/logx"
)

// Service delivers messages through a transport sender. One failed or
// slow subscriber never blocks or fails the others; failures are
// counted, logged, and dropped.
type Service struct {
	log    logx.Logger
	bus    eventbus.Bus
	sender transport.Sender
	dedup  *storage.DedupStore

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender transport.Sender, dedup *storage.DedupStore, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{
		log:    log.With(logx.String("svc", "notifier")),
		bus:    bus,
		sender: sender,
		dedup:  dedup,
	}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure swaps delivery settings. In-flight deliveries keep the
// settings they started with.
func (s *Service) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	} else {
		s.limiter = nil
	}
	s.mu.Unlock()
}

// Deliver sends message to subs. The dedup check happens exactly once,
// before any send; a duplicate suppresses the whole fan-out.
func (s *Service) Deliver(ctx context.Context, siteID, message string, subs []storage.Subscriber) {
	s.DeliverResult(ctx, siteID, message, subs)
}

// DeliverResult is Deliver with a per-fan-out summary.
func (s *Service) DeliverResult(ctx context.Context, siteID, message string, subs []storage.Subscriber) Result {
	s.mu.Lock()
	cfg := s.cfg
	limiter := s.limiter
	s.mu.Unlock()

	res := Result{ID: uuid.NewString()[:8]}
	log := s.log.With(logx.String("site", siteID), logx.String("delivery", res.ID))

	if s.dedup.CheckAndRecord(ctx, siteID, message) {
		res.Duplicate = true
		log.Debug("duplicate suppressed")
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifyDeduped, Time: time.Now(), Data: siteID})
		return res
	}

	targets := make([]storage.Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.Session == "" {
			res.Skipped++
			log.Warn("subscriber has no session, skipping",
				logx.String("subscriber", sub.ID),
				logx.Bool("group", sub.IsGroup))
			s.bus.Publish(eventbus.Event{Type: eventbus.NotifySkipped, Time: time.Now(), Data: sub.ID})
			continue
		}
		targets = append(targets, sub)
	}

	var resMu sync.Mutex
	for start := 0; start < len(targets); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		var wg sync.WaitGroup
		for _, sub := range targets[start:end] {
			wg.Add(1)
			go func(sub storage.Subscriber) {
				defer wg.Done()
				err := s.sendOne(ctx, cfg, limiter, sub.Session, message)
				resMu.Lock()
				if err != nil {
					res.Failed++
				} else {
					res.Sent++
				}
				resMu.Unlock()
				if err != nil {
					log.Warn("send failed",
						logx.String("subscriber", sub.ID),
						logx.Err(err))
					s.bus.Publish(eventbus.Event{Type: eventbus.NotifyFailed, Time: time.Now(), Data: sub.ID})
				}
			}(sub)
		}
		wg.Wait()
	}

	log.Info("delivery finished",
		logx.Int("sent", res.Sent),
		logx.Int("skipped", res.Skipped),
		logx.Int("failed", res.Failed))
	s.bus.Publish(eventbus.Event{Type: eventbus.NotifySent, Time: time.Now(), Data: siteID})
	return res
}

func (s *Service) sendOne(ctx context.Context, cfg Config, limiter *rate.Limiter, session, message string) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		lastErr = s.sender.Send(attemptCtx, session, message)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

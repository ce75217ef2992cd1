// Package scheduler triggers site checks on per-site schedules and
// hands results to the notification layer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sitewatch/internal/eventbus"
	"sitewatch/internal/site"
	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

// runState guards one job against overlapping runs. A trigger that
// fires while the previous check is still in flight is dropped, not
// queued.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (st *runState) tryStart() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) finish() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

func (st *runState) isRunning() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

type job struct {
	site    site.Site
	spec    Spec
	entry   cron.EntryID
	dormant bool
	reason  string
	state   runState

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Service owns the cron runner and the per-site jobs. Each registered
// site has at most one job; re-registering replaces it.
type Service struct {
	cfg      Config
	log      logx.Logger
	bus      eventbus.Bus
	subs     SubscriberSource
	delivery Delivery
	loc      *time.Location
	cron     *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*job
	started bool

	baseCtx context.Context
	cancel  context.CancelFunc
	runWG   sync.WaitGroup
}

func New(cfg Config, subs SubscriberSource, delivery Delivery, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: timezone %q: %w", cfg.Timezone, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:      cfg,
		log:      log.With(logx.String("svc", "scheduler")),
		bus:      bus,
		subs:     subs,
		delivery: delivery,
		loc:      loc,
		cron:     cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		jobs:     make(map[string]*job),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// Register creates or replaces the job for s. A site whose schedule
// does not parse is kept registered but dormant; the returned
// ScheduleParseError says why.
func (s *Service) Register(st site.Site) error {
	id := st.ID()
	spec, perr := ParseSchedule(id, st.Schedule())

	s.mu.Lock()
	if old, ok := s.jobs[id]; ok && old.entry != 0 {
		s.cron.Remove(old.entry)
	}
	j := &job{site: st, spec: spec}
	if perr != nil {
		j.dormant = true
		j.reason = perr.Error()
	}
	s.jobs[id] = j
	fireNow := false
	if !j.dormant && s.cfg.Enabled {
		if spec.IsInterval() {
			j.entry = s.cron.Schedule(cron.Every(spec.Interval), s.jobFunc(id))
			fireNow = s.started
		} else {
			j.entry = s.cron.Schedule(spec.Cron, s.jobFunc(id))
		}
	}
	s.mu.Unlock()

	if perr != nil {
		s.log.Warn("site registered dormant",
			logx.String("site", id),
			logx.String("schedule", st.Schedule()),
			logx.Err(perr))
		return perr
	}
	s.log.Info("site scheduled",
		logx.String("site", id),
		logx.String("schedule", spec.Raw))
	// Interval sites fire once right away so a fresh subscription does
	// not wait a full period for its first check.
	if fireNow {
		s.spawnRun(id)
	}
	return nil
}

// Unregister removes the job for id. An in-flight check finishes but
// its results are discarded.
func (s *Service) Unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	if j.entry != 0 {
		s.cron.Remove(j.entry)
	}
	delete(s.jobs, id)
	return true
}

// Start begins triggering. Interval jobs fire immediately.
func (s *Service) Start() {
	s.mu.Lock()
	if s.started || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.started = true
	var fire []string
	for id, j := range s.jobs {
		if !j.dormant && j.spec.IsInterval() {
			fire = append(fire, id)
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	for _, id := range fire {
		s.spawnRun(id)
	}
	s.log.Info("scheduler started", logx.Int("jobs", len(fire)))
}

// Shutdown stops triggering and waits for in-flight checks, bounded by
// ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: shutdown: %w", ctx.Err())
	}
}

func (s *Service) jobFunc(id string) cron.Job {
	return cron.FuncJob(func() { s.runCheck(id) })
}

func (s *Service) spawnRun(id string) {
	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		s.runCheck(id)
	}()
}

func (s *Service) runCheck(id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if !j.state.tryStart() {
		s.log.Debug("check skipped, previous run still in flight", logx.String("site", id))
		s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleSkipped, Time: time.Now(), Data: id})
		return
	}
	defer j.state.finish()

	subs := s.subs.Subscribers(id)
	if len(subs) == 0 {
		s.log.Debug("check skipped, no subscribers", logx.String("site", id))
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.CheckTimeout)
	defer cancel()

	start := time.Now()
	messages, err := safeCheck(ctx, j.site)

	j.mu.Lock()
	j.lastRun = start
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		s.log.Error("site check failed",
			logx.String("site", id),
			logx.Duration("elapsed", time.Since(start)),
			logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.SiteCheckFailed, Time: time.Now(), Data: id})
		return
	}
	s.log.Debug("site checked",
		logx.String("site", id),
		logx.Int("updates", len(messages)),
		logx.Duration("elapsed", time.Since(start)))
	s.bus.Publish(eventbus.Event{Type: eventbus.SiteChecked, Time: time.Now(), Data: id})

	if len(messages) == 0 {
		return
	}
	// A site unregistered mid-check gets its late results dropped.
	s.mu.Lock()
	_, still := s.jobs[id]
	s.mu.Unlock()
	if !still {
		s.log.Debug("discarding results of unregistered site", logx.String("site", id))
		return
	}
	// Delivery runs on the service context, not the check timeout: a
	// slow check should not shrink the send budget.
	for _, msg := range messages {
		s.delivery.Deliver(s.baseCtx, id, msg, subs)
	}
}

// safeCheck converts a panicking site into an error so one bad plugin
// cannot take the scheduler down.
func safeCheck(ctx context.Context, st site.Site) (messages []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			messages = nil
			err = fmt.Errorf("check panicked: %v", p)
		}
	}()
	return st.CheckUpdates(ctx)
}

// RunNow triggers one immediate check for id, subject to the same
// overlap guard as scheduled runs.
func (s *Service) RunNow(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return errors.New("scheduler: unknown site")
	}
	s.spawnRun(id)
	return nil
}

var _ SubscriberSource = (*storage.SubscriptionStore)(nil)

package dispatcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"autopost/internal/gateway"
	"autopost/internal/metrics"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

const defaultCronSpec = "* * * * *"

type Config struct {
	Enabled bool
	// Timezone is the IANA zone posts are interpreted in. Empty means local.
	Timezone string
	// CronSpec is the tick trigger. The default fires once per wall-clock
	// minute, matching the HH:MM granularity of post times; a shorter or
	// overlapping cadence would deliver the same post more than once, since
	// no sent-marker is written back.
	CronSpec string
	// RatePerSec caps gateway sends within a tick. 0 disables pacing.
	RatePerSec int
}

// Service scans scheduled posts once per tick and delivers every post whose
// time-of-day equals the current minute. Failures are isolated per post:
// logged, counted, and the post stays scheduled for the next matching tick.
type Service struct {
	mu  sync.Mutex
	cfg Config

	store   storage.Store
	gw      gateway.Gateway
	log     logx.Logger
	clock   func() time.Time
	loc     *time.Location
	limiter *rate.Limiter

	cron    *cron.Cron
	running bool
}

type Option func(*Service)

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.clock = fn
		}
	}
}

func New(cfg Config, store storage.Store, gw gateway.Gateway, log logx.Logger, opts ...Option) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	s := &Service{
		cfg:   cfg,
		store: store,
		gw:    gw,
		log:   log,
		clock: time.Now,
		loc:   loc,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	spec := strings.TrimSpace(s.cfg.CronSpec)
	if spec == "" {
		spec = defaultCronSpec
	}

	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		s.log.Error("invalid cron spec; dispatcher not started", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.cron = c
	s.running = true
	c.Start()
	s.log.Info("dispatcher started", logx.String("spec", spec), logx.String("tz", s.loc.String()))
}

// Stop halts the trigger and waits (bounded by ctx) for a running tick.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("dispatcher stop timed out with a tick in flight")
	}
}

func (s *Service) tick(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.clock().In(s.loc).Format("15:04")
	s.tickAt(ctx, now)
}

// tickAt runs one evaluation cycle for the given HH:MM. Split out from the
// cron trigger so tests can drive arbitrary minutes directly.
func (s *Service) tickAt(ctx context.Context, hhmm string) {
	metrics.DispatcherTicks.Inc()

	posts, err := s.store.ListDuePosts(ctx, hhmm)
	if err != nil {
		// A store failure skips this tick; it must never stop the loop.
		s.log.Warn("due-post query failed", logx.String("at", hhmm), logx.Err(err))
		return
	}
	if len(posts) == 0 {
		return
	}
	s.log.Debug("dispatching due posts", logx.String("at", hhmm), logx.Int("count", len(posts)))

	for _, p := range posts {
		if ctx.Err() != nil {
			return
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}
		// Best effort, no retry: a failed post stays scheduled for the next
		// day's matching tick and is visible only in logs and counters.
		if err := s.gw.SendImage(ctx, p.ChannelID, p.ImageRef, p.Caption); err != nil {
			metrics.PostsDispatched.WithLabelValues("failed").Inc()
			s.log.Warn("post delivery failed",
				logx.Int64("post", p.ID), logx.Int64("channel", p.ChannelID), logx.String("at", hhmm), logx.Err(err))
			continue
		}
		metrics.PostsDispatched.WithLabelValues("sent").Inc()
		s.log.Info("post delivered",
			logx.Int64("post", p.ID), logx.Int64("channel", p.ChannelID), logx.String("at", hhmm))
	}
}

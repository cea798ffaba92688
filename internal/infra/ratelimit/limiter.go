// internal/infra/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Category is a quota bucket of the vendor API.
type Category string

const (
	General    Category = "general"
	Privileged Category = "privileged" // write operations; also charged to General
)

// Quota admits Limit calls in any sliding Window.
type Quota struct {
	Limit  int
	Window time.Duration
}

type Config struct {
	General    Quota
	Privileged Quota
	// AdvisoryCap bounds how long a server next-poll advisory may stall a
	// capped endpoint.
	AdvisoryCap     time.Duration
	CappedEndpoints []string
	// MaxSleep is the longest single sleep while waiting, so cancellation
	// is observed promptly.
	MaxSleep time.Duration
}

func DefaultConfig() Config {
	return Config{
		General:     Quota{Limit: 30, Window: 300 * time.Second},
		Privileged:  Quota{Limit: 3, Window: 30 * time.Second},
		AdvisoryCap: 10 * time.Second,
		MaxSleep:    time.Second,
	}
}

// Usage is a point-in-time view of one category.
type Usage struct {
	Category  Category
	Used      int
	Limit     int
	Remaining int
	Window    time.Duration
	NextReset time.Time // when the oldest counted call leaves the window; zero if none
}

type Option func(*Limiter)

// WithClock substitutes the time source and the sleeper, for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithWaitObserver is told about every wait the limiter imposes.
func WithWaitObserver(fn func(Category, time.Duration)) Option {
	return func(l *Limiter) { l.observe = fn }
}

// Limiter is a dual sliding-window gate in front of the vendor API. It never
// rejects a call; it only delays it. One mutex guards every category so a
// privileged call is charged to both windows atomically.
type Limiter struct {
	mu         sync.Mutex
	quotas     map[Category]Quota
	windows    map[Category][]time.Time
	advisories map[string]time.Time
	capped     map[string]bool
	advCap     time.Duration
	maxSleep   time.Duration

	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	observe func(Category, time.Duration)
	log     *logrus.Entry
}

func New(cfg Config, log *logrus.Entry, opts ...Option) *Limiter {
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = time.Second
	}
	l := &Limiter{
		quotas: map[Category]Quota{
			General:    cfg.General,
			Privileged: cfg.Privileged,
		},
		windows:    make(map[Category][]time.Time),
		advisories: make(map[string]time.Time),
		capped:     make(map[string]bool),
		advCap:     cfg.AdvisoryCap,
		maxSleep:   cfg.MaxSleep,
		now:        time.Now,
		sleep:      sleepContext,
		log:        log,
	}
	for _, ep := range cfg.CappedEndpoints {
		l.capped[ep] = true
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// charged lists the windows a call in cat is counted against.
func charged(cat Category) []Category {
	if cat == Privileged {
		return []Category{Privileged, General}
	}
	return []Category{General}
}

// Acquire blocks until one more call in cat fits every window it is charged
// to, then records it. The only error is the context's.
func (l *Limiter) Acquire(ctx context.Context, cat Category) error {
	cats := charged(cat)
	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		var wait time.Duration
		for _, c := range cats {
			q := l.quotas[c]
			l.prune(c, now)
			if q.Limit > 0 && len(l.windows[c]) >= q.Limit {
				if w := l.windows[c][0].Add(q.Window).Sub(now); w > wait {
					wait = w
				}
			}
		}
		if wait <= 0 {
			for _, c := range cats {
				l.windows[c] = append(l.windows[c], now)
			}
			l.mu.Unlock()
			if waited > 0 && l.observe != nil {
				l.observe(cat, waited)
			}
			return nil
		}
		l.mu.Unlock()

		if waited == 0 && l.log != nil {
			l.log.WithFields(logrus.Fields{"category": cat, "wait": wait.Round(time.Millisecond)}).Debug("Rate limit reached, waiting")
		}
		step := wait
		if step > l.maxSleep {
			step = l.maxSleep
		}
		if err := l.sleep(ctx, step); err != nil {
			return err
		}
		waited += step
	}
}

// prune drops calls that have left the window. Caller holds mu.
func (l *Limiter) prune(c Category, now time.Time) {
	q := l.quotas[c]
	cutoff := now.Add(-q.Window)
	ts := l.windows[c]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.windows[c] = append(ts[:0:0], ts[i:]...)
	}
}

// Advise records a server next-poll advisory for an endpoint.
func (l *Limiter) Advise(endpoint string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advisories[endpoint] = l.now().Add(delay)
}

// WaitAdvisory sleeps until the endpoint's latest advisory has passed. Capped
// endpoints wait at most AdvisoryCap.
func (l *Limiter) WaitAdvisory(ctx context.Context, endpoint string) error {
	l.mu.Lock()
	notBefore, ok := l.advisories[endpoint]
	now := l.now()
	capped := l.capped[endpoint]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	wait := notBefore.Sub(now)
	if wait <= 0 {
		return nil
	}
	if capped && l.advCap > 0 && wait > l.advCap {
		if l.log != nil {
			l.log.WithFields(logrus.Fields{"endpoint": endpoint, "advised": wait.Round(time.Second), "cap": l.advCap}).Debug("Capping next-poll advisory")
		}
		wait = l.advCap
	}
	for wait > 0 {
		step := wait
		if step > l.maxSleep {
			step = l.maxSleep
		}
		if err := l.sleep(ctx, step); err != nil {
			return err
		}
		wait -= step
	}
	return nil
}

// Snapshot reports current usage per category, ordered by name.
func (l *Limiter) Snapshot() []Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	out := make([]Usage, 0, len(l.quotas))
	for c, q := range l.quotas {
		l.prune(c, now)
		u := Usage{Category: c, Used: len(l.windows[c]), Limit: q.Limit, Window: q.Window}
		u.Remaining = q.Limit - u.Used
		if u.Remaining < 0 {
			u.Remaining = 0
		}
		if u.Used > 0 {
			u.NextReset = l.windows[c][0].Add(q.Window)
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// reset clears all windows and advisories. Only tests reach it.
func (l *Limiter) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[Category][]time.Time)
	l.advisories = make(map[string]time.Time)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

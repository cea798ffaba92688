package reports

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"irrigation_monitor/internal/domain/irrigation"
)

// Trigger is called with the day whose report files changed.
type Trigger func(ctx context.Context, date time.Time)

// Watcher watches the report directory and triggers a collection for a
// day once its files have been quiet for the debounce interval, so a file
// written in several chunks causes one collection.
type Watcher struct {
	dir      string
	loc      *time.Location
	debounce time.Duration
	trigger  Trigger
	logger   *logrus.Entry

	mu      sync.Mutex
	pending map[string]time.Time
	timer   *time.Timer
}

func NewWatcher(dir string, loc *time.Location, debounce time.Duration, trigger Trigger, logger *logrus.Entry) *Watcher {
	if loc == nil {
		loc = time.Local
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{dir: dir, loc: loc, debounce: debounce, trigger: trigger, logger: logger, pending: make(map[string]time.Time)}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("could not create report directory %s: %w", w.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", w.dir, err)
	}
	w.logger.WithField("dir", w.dir).Info("Watching report directory")

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			day, ok := DateFromFilename(evt.Name, w.loc)
			if !ok {
				continue
			}
			w.schedule(day, fire)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Report watcher error")
		case <-fire:
			for _, day := range w.drain() {
				w.logger.WithField("date", irrigation.DateKey(day)).Info("Report files changed, collecting")
				w.trigger(ctx, day)
			}
		}
	}
}

func (w *Watcher) schedule(day time.Time, fire chan<- struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[irrigation.DateKey(day)] = day
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) drain() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	days := make([]time.Time, 0, len(w.pending))
	for k, d := range w.pending {
		days = append(days, d)
		delete(w.pending, k)
	}
	return days
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

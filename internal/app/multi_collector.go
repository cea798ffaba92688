// internal/app/multi_collector.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"irrigation_monitor/internal/domain/collection"
)

// CollectorSource is a named collector, e.g. the vendor API or the report drop.
type CollectorSource struct {
	Name      string
	Collector collection.Collector
}

// MultiCollector queries every source concurrently and merges the results.
// A failing source becomes a partial error as long as one other source
// answered; when every source fails the first error is returned so the
// failure kind of the cycle reflects it.
type MultiCollector struct {
	sources []CollectorSource
	log     *logrus.Entry
}

func NewMultiCollector(log *logrus.Entry, sources ...CollectorSource) *MultiCollector {
	return &MultiCollector{sources: sources, log: log}
}

func (m *MultiCollector) Collect(ctx context.Context, dates []time.Time) (*collection.Result, error) {
	switch len(m.sources) {
	case 0:
		return nil, fmt.Errorf("%w: no collector sources configured", collection.ErrNoData)
	case 1:
		src := m.sources[0]
		res, err := src.Collector.Collect(ctx, dates)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("%w: %s returned no result", collection.ErrNoData, src.Name)
		}
		return res, nil
	}

	results := make([]*collection.Result, len(m.sources))
	errs := make([]error, len(m.sources))

	// Source errors are kept per slot rather than returned, so one failure
	// does not cancel the others.
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		i, src := i, src
		g.Go(func() error {
			res, err := src.Collector.Collect(gctx, dates)
			results[i], errs[i] = res, err
			return nil
		})
	}
	_ = g.Wait()

	merged := &collection.Result{}
	var firstErr error
	answered := 0
	for i, src := range m.sources {
		if errs[i] != nil {
			m.log.WithError(errs[i]).WithField("source", src.Name).Warn("Collector source failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", src.Name, errs[i])
			}
			merged.Errors = append(merged.Errors, fmt.Sprintf("%s: %v", src.Name, errs[i]))
			continue
		}
		answered++
		if results[i] == nil {
			continue
		}
		merged.Scheduled = append(merged.Scheduled, results[i].Scheduled...)
		merged.Actual = append(merged.Actual, results[i].Actual...)
		for _, e := range results[i].Errors {
			merged.Errors = append(merged.Errors, fmt.Sprintf("%s: %s", src.Name, e))
		}
	}
	if answered == 0 {
		return nil, firstErr
	}
	return merged, nil
}

// Package reports collects plan and record data from report files dropped
// into a directory by an exporter. A day's plan is schedule-YYYY-MM-DD and
// its record is reported-YYYY-MM-DD, each as .json, .yaml or .yml.
package reports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
)

// ErrNoReports means none of the requested days has a report file.
var ErrNoReports = fmt.Errorf("%w: no report files for the requested dates", collection.ErrNoData)

const (
	kindSchedule = "schedule"
	kindReported = "reported"
)

var extensions = []string{".json", ".yaml", ".yml"}

// reportFile is the on-disk shape. JSON files decode through the YAML
// decoder as well.
type reportFile struct {
	Date string      `yaml:"date"`
	Runs []reportRun `yaml:"runs"`
}

type reportRun struct {
	ZoneID          string   `yaml:"zone_id"`
	ZoneName        string   `yaml:"zone_name"`
	Start           string   `yaml:"start"`
	DurationMinutes float64  `yaml:"duration_minutes"`
	ExpectedGallons *float64 `yaml:"expected_gallons"`
	ActualGallons   *float64 `yaml:"actual_gallons"`
	Status          string   `yaml:"status"`
	FailureReason   *string  `yaml:"failure_reason"`
	Notes           string   `yaml:"notes"`
}

type Collector struct {
	dir    string
	loc    *time.Location
	logger *logrus.Entry
}

func NewCollector(dir string, loc *time.Location, logger *logrus.Entry) *Collector {
	if loc == nil {
		loc = time.Local
	}
	return &Collector{dir: dir, loc: loc, logger: logger}
}

func (c *Collector) Collect(ctx context.Context, dates []time.Time) (*collection.Result, error) {
	res := &collection.Result{}
	found := 0
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := irrigation.DateOf(d.In(c.loc))
		key := irrigation.DateKey(day)

		schedPath, schedOK := c.find(kindSchedule, key)
		repPath, repOK := c.find(kindReported, key)
		if !schedOK && !repOK {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: no report files", key))
			continue
		}
		found++

		if schedOK {
			runs, errs := c.readScheduled(schedPath, day)
			res.Scheduled = append(res.Scheduled, runs...)
			res.Errors = append(res.Errors, errs...)
		}
		if repOK {
			runs, errs := c.readActual(repPath, day)
			res.Actual = append(res.Actual, runs...)
			res.Errors = append(res.Errors, errs...)
		}
	}
	if found == 0 {
		return nil, ErrNoReports
	}
	c.logger.WithFields(logrus.Fields{
		"scheduled": len(res.Scheduled),
		"actual":    len(res.Actual),
		"errors":    len(res.Errors),
	}).Debug("Report files collected")
	return res, nil
}

func (c *Collector) find(kind, date string) (string, bool) {
	for _, ext := range extensions {
		p := filepath.Join(c.dir, kind+"-"+date+ext)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

func (c *Collector) load(path string, day time.Time) (*reportFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f reportFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if f.Date != "" && f.Date != irrigation.DateKey(day) {
		return nil, fmt.Errorf("%s: file is dated %s", filepath.Base(path), f.Date)
	}
	return &f, nil
}

func (c *Collector) readScheduled(path string, day time.Time) ([]irrigation.ScheduledRun, []string) {
	f, err := c.load(path, day)
	if err != nil {
		return nil, []string{err.Error()}
	}
	var (
		runs []irrigation.ScheduledRun
		errs []string
	)
	for i, r := range f.Runs {
		start, err := parseStart(r.Start, day)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s run %d: %v", filepath.Base(path), i+1, err))
			continue
		}
		run := irrigation.ScheduledRun{
			ZoneID:          strings.TrimSpace(r.ZoneID),
			ZoneName:        strings.TrimSpace(r.ZoneName),
			StartTime:       start,
			DurationMinutes: r.DurationMinutes,
			ExpectedGallons: r.ExpectedGallons,
			Notes:           r.Notes,
			SourceDate:      day,
		}
		if err := run.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s run %d: %v", filepath.Base(path), i+1, err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, errs
}

func (c *Collector) readActual(path string, day time.Time) ([]irrigation.ActualRun, []string) {
	f, err := c.load(path, day)
	if err != nil {
		return nil, []string{err.Error()}
	}
	var (
		runs []irrigation.ActualRun
		errs []string
	)
	for i, r := range f.Runs {
		start, err := parseStart(r.Start, day)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s run %d: %v", filepath.Base(path), i+1, err))
			continue
		}
		run := irrigation.ActualRun{
			ZoneID:          strings.TrimSpace(r.ZoneID),
			ZoneName:        strings.TrimSpace(r.ZoneName),
			StartTime:       start,
			DurationMinutes: r.DurationMinutes,
			ActualGallons:   r.ActualGallons,
			Status:          r.Status,
			FailureReason:   r.FailureReason,
			Notes:           r.Notes,
			SourceDate:      day,
		}
		if err := run.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s run %d: %v", filepath.Base(path), i+1, err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, errs
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04PM", "3:04 PM", "3:04pm", "3:04 pm"}

// parseStart accepts a full timestamp or a time of day on the report's date.
func parseStart(s string, day time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing start")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(day.Location()), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, day.Location()); err == nil {
		return t, nil
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start %q", s)
}

// DateFromFilename extracts the day of a report file name, reporting
// false for files that are not report drops.
func DateFromFilename(name string, loc *time.Location) (time.Time, bool) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	known := false
	for _, e := range extensions {
		if ext == e {
			known = true
		}
	}
	if !known {
		return time.Time{}, false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, kind := range []string{kindSchedule, kindReported} {
		if date, ok := strings.CutPrefix(stem, kind+"-"); ok {
			d, err := irrigation.ParseDate(date, loc)
			return d, err == nil
		}
	}
	return time.Time{}, false
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation_monitor/internal/domain/alert"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestAlertPublisher_Notify(t *testing.T) {
	w := &fakeWriter{}
	p := newAlertPublisher(w, "irrigation.alerts", testLogger())
	published := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return published }

	deficit := 42.5
	a := alert.Alert{
		ID:             "a-1",
		ConditionID:    "a-1",
		ZoneID:         "2",
		ZoneName:       "Front Color",
		Type:           alert.FailureMissingRun,
		Severity:       alert.SeverityCritical,
		Description:    "Scheduled run did not happen",
		RunDate:        "2025-06-10",
		DeficitGallons: &deficit,
	}
	require.NoError(t, p.Notify(context.Background(), a))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a-1", string(w.msgs[0].Key))
	assert.Equal(t, published, w.msgs[0].Time)

	var ev AlertEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "missing_run", ev.Type)
	assert.Equal(t, "CRITICAL", ev.Severity)
	assert.Equal(t, "2", ev.ZoneID)
	require.NotNil(t, ev.DeficitGallons)
	assert.InDelta(t, 42.5, *ev.DeficitGallons, 0.001)
	assert.Empty(t, ev.SupersedesID)
}

func TestAlertPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newAlertPublisher(w, "irrigation.alerts", testLogger())

	err := p.Notify(context.Background(), alert.Alert{ID: "a-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "irrigation.alerts")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

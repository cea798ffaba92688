// internal/infra/kafka/publisher.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"irrigation_monitor/internal/domain/alert"
)

// AlertEvent is the message published for every newly raised alert.
type AlertEvent struct {
	ID             string     `json:"id"`
	ConditionID    string     `json:"condition_id"`
	SupersedesID   string     `json:"supersedes_id,omitempty"`
	ZoneID         string     `json:"zone_id"`
	ZoneName       string     `json:"zone_name,omitempty"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Description    string     `json:"description"`
	Action         string     `json:"action,omitempty"`
	RunDate        string     `json:"run_date"`
	RunStart       time.Time  `json:"run_start"`
	DeficitGallons *float64   `json:"deficit_gallons,omitempty"`
	PlantRisk      string     `json:"plant_risk,omitempty"`
	DetectedAt     time.Time  `json:"detected_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	PublishedAt    time.Time  `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertPublisher fans raised alerts out to a Kafka topic, keyed by alert id
// so every event for one alert lands on the same partition.
type AlertPublisher struct {
	writer messageWriter
	topic  string
	log    *logrus.Entry
	now    func() time.Time
}

func NewAlertPublisher(brokers []string, topic string, log *logrus.Entry) *AlertPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newAlertPublisher(w, topic, log)
}

func newAlertPublisher(w messageWriter, topic string, log *logrus.Entry) *AlertPublisher {
	return &AlertPublisher{writer: w, topic: topic, log: log.WithField("topic", topic), now: time.Now}
}

func (p *AlertPublisher) Notify(ctx context.Context, a alert.Alert) error {
	ev := AlertEvent{
		ID:             a.ID,
		ConditionID:    a.ConditionID,
		SupersedesID:   a.SupersedesID,
		ZoneID:         a.ZoneID,
		ZoneName:       a.ZoneName,
		Type:           string(a.Type),
		Severity:       string(a.Severity),
		Description:    a.Description,
		Action:         a.Action,
		RunDate:        a.RunDate,
		RunStart:       a.RunStart,
		DeficitGallons: a.DeficitGallons,
		PlantRisk:      string(a.PlantRisk),
		DetectedAt:     a.DetectedAt,
		ResolvedAt:     a.ResolvedAt,
		PublishedAt:    p.now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
	}
	msg := kafka.Message{Key: []byte(a.ID), Value: body, Time: ev.PublishedAt}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("alert_id", a.ID).Warn("Failed to publish alert")
		return fmt.Errorf("failed to publish alert %s to %s: %w", a.ID, p.topic, err)
	}
	p.log.WithField("alert_id", a.ID).Debug("Alert published")
	return nil
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}

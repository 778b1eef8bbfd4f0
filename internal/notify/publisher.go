// Package notify publishes route briefing alerts to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/briefing"
	"github.com/skybrief/skybrief/internal/wx"
)

// Topic sends one message and returns the broker's message ID.
type Topic interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// AlertMessage is the payload published for a briefing that raised alerts.
type AlertMessage struct {
	BriefingID  string           `json:"briefingId"`
	Severity    wx.Severity      `json:"severity"`
	Summary     string           `json:"summary"`
	Route       []string         `json:"route"`
	Alerts      []briefing.Alert `json:"alerts"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// AlertPublisher implements briefing.AlertSink on top of a Topic.
type AlertPublisher struct {
	topic   Topic
	timeout time.Duration
	logger  zerolog.Logger
}

// PublisherConfig holds configuration for an AlertPublisher.
type PublisherConfig struct {
	Topic Topic

	// Timeout bounds a single publish. Default: 10 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// NewAlertPublisher creates an alert publisher.
func NewAlertPublisher(cfg PublisherConfig) *AlertPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AlertPublisher{
		topic:   cfg.Topic,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// PublishAlerts publishes one message per briefing. Briefings without alerts
// are skipped.
func (p *AlertPublisher) PublishAlerts(ctx context.Context, b *briefing.RouteBriefing) error {
	if b == nil || len(b.Alerts) == 0 {
		return nil
	}

	msg := AlertMessage{
		BriefingID:  b.ID,
		Severity:    b.Severity,
		Summary:     b.Summary,
		Alerts:      b.Alerts,
		GeneratedAt: b.GeneratedAt,
	}
	for _, w := range b.Waypoints {
		label := w.Station
		if label == "" {
			label = w.Waypoint.ID
		}
		msg.Route = append(msg.Route, label)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding alert message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id, err := p.topic.Send(ctx, data, map[string]string{
		"briefing_id": b.ID,
		"severity":    b.Severity.String(),
	})
	if err != nil {
		return fmt.Errorf("publishing alerts for briefing %s: %w", b.ID, err)
	}

	p.logger.Info().
		Str("briefing_id", b.ID).
		Str("message_id", id).
		Int("alerts", len(b.Alerts)).
		Msg("published briefing alerts")
	return nil
}

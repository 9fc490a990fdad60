package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

// CityLister returns the tracked cities in registry order.
type CityLister interface {
	Cities(ctx context.Context) ([]string, error)
}

// Snapshotter builds the feed snapshot for a set of cities.
type Snapshotter interface {
	Snapshot(cities []string) weather.FeedSnapshot
}

// Sink receives every pushed snapshot payload in addition to the SSE hub.
type Sink interface {
	Publish(payload []byte) error
}

// Pusher periodically encodes the current snapshot and pushes it out.
type Pusher struct {
	cities   CityLister
	readings Snapshotter
	hub      *Hub
	sinks    []Sink
	interval time.Duration
	logger   *slog.Logger
}

func NewPusher(cities CityLister, readings Snapshotter, hub *Hub, interval time.Duration, logger *slog.Logger, sinks ...Sink) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		cities:   cities,
		readings: readings,
		hub:      hub,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
	}
}

// Current returns the encoded snapshot message for the tracked cities.
func (p *Pusher) Current(ctx context.Context) ([]byte, error) {
	cities, err := p.cities.Cities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	payload, err := json.Marshal(weather.SnapshotMessage{Cities: p.readings.Snapshot(cities)})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return payload, nil
}

// PushOnce broadcasts the current snapshot to the hub and every sink.
func (p *Pusher) PushOnce(ctx context.Context) {
	payload, err := p.Current(ctx)
	if err != nil {
		p.logger.Error("build snapshot failed", "error", err)
		return
	}

	p.hub.Broadcast(Message{Data: payload})
	for _, s := range p.sinks {
		if err := s.Publish(payload); err != nil {
			p.logger.Warn("publish snapshot failed", "error", err)
		}
	}
}

// Run pushes a snapshot every interval until ctx is done.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.PushOnce(ctx)
		}
	}
}

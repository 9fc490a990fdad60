package feed

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/i474232898/weather-live-sync/internal/config"
	"github.com/i474232898/weather-live-sync/internal/state"
	"github.com/i474232898/weather-live-sync/internal/weather"
)

// refusedPort returns a local port with nothing listening on it.
func refusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestMQTTConnectFailureIsReported(t *testing.T) {
	tr := NewMQTTTransport(config.MQTT{
		Broker:   "127.0.0.1",
		Port:     refusedPort(t),
		Topic:    "weather/snapshot",
		ClientID: "test",
	}, nil)
	tr.retry = 50 * time.Millisecond
	h := &recordingHandler{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, h) }()

	eventually(t, func() bool {
		_, _, errs := h.snapshot()
		return errs >= 2
	})
	cancel()
	assert.Equal(t, <-done, nil)

	opens, _, _ := h.snapshot()
	assert.Equal(t, opens, 0)
}

func TestMQTTRefusedBrokerGoesOffline(t *testing.T) {
	tr := NewMQTTTransport(config.MQTT{
		Broker:   "127.0.0.1",
		Port:     refusedPort(t),
		Topic:    "weather/snapshot",
		ClientID: "test",
	}, nil)
	tr.retry = time.Hour

	st := state.New()
	sub := NewSubscriber(tr, st)
	assert.Equal(t, sub.Start(context.Background()), nil)
	defer sub.Close()

	eventually(t, func() bool { return st.Read().Status == weather.StatusOffline })
}

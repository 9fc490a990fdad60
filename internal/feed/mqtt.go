package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/i474232898/weather-live-sync/internal/config"
)

// MQTTTransport receives snapshots published on an MQTT topic. Until the
// first connect succeeds every failed attempt is reported and retried after
// a fixed delay; after that paho's auto-reconnect takes over. The
// subscription is renewed on every connect because sessions are clean.
type MQTTTransport struct {
	cfg    config.MQTT
	logger *slog.Logger
	retry  time.Duration
}

func NewMQTTTransport(cfg config.MQTT, logger *slog.Logger) *MQTTTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTTransport{cfg: cfg, logger: logger, retry: 5 * time.Second}
}

func (t *MQTTTransport) Run(ctx context.Context, h Handler) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", t.cfg.Broker, t.cfg.Port))
	// each activation is its own client; a shared id would kick the other off
	opts.SetClientID(t.cfg.ClientID + "-" + uuid.NewString()[:8])
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	topic := t.cfg.Topic
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			h.OnMessage(msg.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			h.OnError(fmt.Errorf("subscribe timeout for topic %s", topic))
			return
		}
		if err := token.Error(); err != nil {
			h.OnError(fmt.Errorf("subscribe to %s: %w", topic, err))
			return
		}
		t.logger.Info("mqtt feed subscribed", "broker", t.cfg.Broker, "topic", topic)
		h.OnOpen()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.OnError(fmt.Errorf("mqtt connection lost: %w", err))
	})

	client := mqtt.NewClient(opts)
	defer client.Disconnect(250)

	if !t.connect(ctx, client, h) {
		return nil
	}

	<-ctx.Done()
	return nil
}

// connect retries the first connection until it succeeds or ctx ends,
// reporting each failed attempt.
func (t *MQTTTransport) connect(ctx context.Context, client mqtt.Client, h Handler) bool {
	const poll = 200 * time.Millisecond
	for {
		token := client.Connect()
		for !token.WaitTimeout(poll) {
			if ctx.Err() != nil {
				return false
			}
		}
		err := token.Error()
		if err == nil {
			return true
		}

		t.logger.Warn("mqtt connect failed", "broker", t.cfg.Broker, "error", err, "retry", t.retry)
		h.OnError(fmt.Errorf("mqtt connect: %w", err))

		timer := time.NewTimer(t.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

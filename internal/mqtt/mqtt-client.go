package mqtt

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

type EventHandler interface {
	HandleRaw(ctx context.Context, raw json.RawMessage) (model.Ack, error)
}

// HandleMessage runs one MQTT message through the handler. The outcome is
// logged by the handler itself; here we only note the delivery.
func HandleMessage(ctx context.Context, h EventHandler, logger logr.Logger, msg mqtt.Message) {
	payload := msg.Payload()
	logger.V(1).Info("mqtt rx", "topic", msg.Topic(), "qos", msg.Qos(), "mid", msg.MessageID(),
		"bytes", len(payload), "payload", config.Truncate(payload, 256))

	if _, err := h.HandleRaw(ctx, json.RawMessage(payload)); err != nil {
		logger.V(1).Info("mqtt message rejected", "topic", msg.Topic(), "error", err.Error())
	}
}

// messageHandler detaches deliveries from ctx cancellation so a message already
// received is still written while shutdown is in progress.
func messageHandler(ctx context.Context, h EventHandler, logger logr.Logger) mqtt.MessageHandler {
	handleCtx := context.WithoutCancel(ctx)
	return func(_ mqtt.Client, msg mqtt.Message) {
		HandleMessage(handleCtx, h, logger, msg)
	}
}

func BuildMQTTClient(ctx context.Context, cfg config.MQTTConfig, h EventHandler, logger logr.Logger) mqtt.Client {
	logger = logger.WithName("mqtt")
	onMessage := messageHandler(ctx, h, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("connected", "broker", cfg.BrokerURL)
		if token := c.Subscribe(cfg.Topic, cfg.QoS, onMessage); token.Wait() && token.Error() != nil {
			logger.Error(token.Error(), "subscribe failed", "topic", cfg.Topic)
		} else {
			logger.Info("subscribed", "topic", cfg.Topic, "qos", cfg.QoS)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Error(err, "connection lost")
	}

	return mqtt.NewClient(opts)
}

// ConnectWithBackoff retries Connect, doubling the wait up to max, until it
// succeeds or ctx is done.
func ConnectWithBackoff(ctx context.Context, client mqtt.Client, logger logr.Logger, start, max time.Duration) error {
	backoff := start
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		logger.Error(token.Error(), "mqtt connect failed", "retryIn", backoff.String())
		select {
		case <-time.After(backoff):
			if backoff < max {
				backoff *= 2
				if backoff > max {
					backoff = max
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

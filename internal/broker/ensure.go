package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/segmentio/kafka-go"
)

const (
	defaultTopicReplication = 1
	defaultDLQRetentionMs   = "1209600000" // 14d
)

// EnsureDLQTopic creates the dead-letter topic if it does not exist yet.
func EnsureDLQTopic(ctx context.Context, brokers []string, topic string, logger logr.Logger) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	if err := ensureTopic(ctx, brokers[0], topic, 1, defaultTopicReplication,
		map[string]string{"cleanup.policy": "delete", "retention.ms": defaultDLQRetentionMs}); err != nil {
		return err
	}
	logger.Info("dlq topic ensured", "topic", topic, "retentionMs", defaultDLQRetentionMs)
	return nil
}

func toConfigEntries(m map[string]string) []kafka.ConfigEntry {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.ConfigEntry, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}
	return out
}

func ensureTopic(ctx context.Context, broker, topic string, partitions, rf int, config map[string]string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafka.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: rf,
		ConfigEntries:     toConfigEntries(config),
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "exists") {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

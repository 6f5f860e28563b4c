package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/lucaslui/hems/sensor-ingest/internal/broker"
	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/database"
	"github.com/lucaslui/hems/sensor-ingest/internal/deadletter"
	"github.com/lucaslui/hems/sensor-ingest/internal/ingestion"
	"github.com/lucaslui/hems/sensor-ingest/internal/metadata"
	"github.com/lucaslui/hems/sensor-ingest/internal/storage"
)

// Pipeline is the handler plus the resources it owns.
type Pipeline struct {
	Service *ingestion.Service
	Sink    *database.InfluxDB

	closers []func() error
}

// Close releases resources in reverse order of creation.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewPipeline wires the metadata store, the InfluxDB writer and the
// dead-letter recorder selected by cfg.
func NewPipeline(ctx context.Context, cfg *config.Config, logger logr.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	store, err := newMetadataStore(ctx, cfg.Metadata, p)
	if err != nil {
		return nil, err
	}

	p.Sink = database.NewInfluxDB(cfg.Influx, database.PressureSchema(), logger)
	p.closers = append(p.closers, func() error { p.Sink.Close(); return nil })

	dl, err := newDeadLetters(ctx, cfg, p, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	p.Service = &ingestion.Service{
		Logger:      logger.WithName("ingestion"),
		Resolver:    metadata.NewResolver(store, logger),
		Writer:      p.Sink,
		DeadLetters: dl,
	}
	return p, nil
}

func newMetadataStore(ctx context.Context, cfg config.MetadataConfig, p *Pipeline) (metadata.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rdb := metadata.NewRedisClient(metadata.RedisOpts{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.RedisNamespace,
			Timeout:   cfg.RedisTimeout,
		})
		p.closers = append(p.closers, rdb.Close)
		return metadata.NewRedisStore(rdb, cfg.RedisNamespace), nil
	case config.BackendDynamoDB:
		client, err := metadata.SharedDynamoDBClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB: %w", err)
		}
		return metadata.NewDynamoStore(client, cfg.DynamoTable, cfg.KeyAttribute)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}

// A nil recorder (not a typed nil) disables dead letters.
func newDeadLetters(ctx context.Context, cfg *config.Config, p *Pipeline, logger logr.Logger) (ingestion.DeadLetterRecorder, error) {
	switch cfg.DeadLetter {
	case config.DeadLetterKafka:
		if err := broker.EnsureDLQTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.DLQTopic, logger); err != nil {
			logger.Error(err, "could not ensure dlq topic", "topic", cfg.Kafka.DLQTopic)
		}
		w := broker.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.DLQTopic)
		p.closers = append(p.closers, w.Close)
		return deadletter.NewKafkaRecorder(w), nil
	case config.DeadLetterMinIO:
		mc, err := storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			logger.Error(err, "could not ensure dead-letter bucket", "bucket", cfg.MinIO.Bucket)
		}
		return deadletter.NewObjectRecorder(mc, cfg.MinIO.BasePath), nil
	default:
		return nil, nil
	}
}

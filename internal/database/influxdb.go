package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/metrics"
	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

var ErrClosed = errors.New("influxdb writer closed")

// PointWriter is the blocking write surface of the InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxDB writes sensor points. The client is created on first use and
// shared by every caller for the life of the process; influxdb2.Client and its
// blocking write API are safe for concurrent use.
type InfluxDB struct {
	schema *Schema
	logger logr.Logger

	connect func() (influxdb2.Client, PointWriter)

	mu       sync.Mutex
	closed   bool
	client   influxdb2.Client
	writeAPI PointWriter
}

// NewInfluxDB targets an InfluxDB 1.8+ server through the v2 client's
// compatibility endpoints.
func NewInfluxDB(cfg config.InfluxConfig, schema *Schema, logger logr.Logger) *InfluxDB {
	db := &InfluxDB{schema: schema, logger: logger.WithName("influxdb")}
	db.connect = func() (influxdb2.Client, PointWriter) {
		client := influxdb2.NewClient(cfg.URL(), cfg.Username+":"+cfg.Password)
		db.logger.Info("influxdb client created", "url", cfg.URL(), "bucket", cfg.Bucket())
		return client, client.WriteAPIBlocking("", cfg.Bucket())
	}
	return db
}

// NewInfluxDBWithWriter wraps an existing point writer.
func NewInfluxDBWithWriter(w PointWriter, schema *Schema, logger logr.Logger) *InfluxDB {
	return &InfluxDB{
		schema:  schema,
		logger:  logger.WithName("influxdb"),
		connect: func() (influxdb2.Client, PointWriter) { return nil, w },
	}
}

// api connects on first use. It returns nil once Close was called.
func (db *InfluxDB) api() PointWriter {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	if db.writeAPI == nil {
		db.client, db.writeAPI = db.connect()
	}
	return db.writeAPI
}

func (db *InfluxDB) Schema() *Schema { return db.schema }

// Write performs one blocking single-point write. It does not retry.
func (db *InfluxDB) Write(ctx context.Context, p model.MeasurementPoint) error {
	registered, err := db.schema.Admit(p)
	if err != nil {
		return err
	}
	if len(registered) > 0 {
		db.logger.Info("registered new tag names", "measurement", p.Measurement, "tags", registered)
		metrics.AddRegisteredTags(len(registered))
	}

	w := db.api()
	if w == nil {
		return fmt.Errorf("write %s point: %w", p.Measurement, ErrClosed)
	}
	if err := w.WritePoint(ctx, buildPoint(p)); err != nil {
		return fmt.Errorf("write %s point: %w", p.Measurement, err)
	}
	return nil
}

// Close releases the client. Writes after Close fail with ErrClosed.
func (db *InfluxDB) Close() {
	if db == nil {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return
	}
	db.closed = true
	if db.client != nil {
		db.client.Close()
	}
}

func buildPoint(p model.MeasurementPoint) *write.Point {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	return write.NewPoint(p.Measurement, map[string]string(p.Tags), fields, p.Timestamp)
}

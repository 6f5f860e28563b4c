package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/logging"
	"github.com/lucaslui/hems/sensor-ingest/internal/metrics"
	"github.com/lucaslui/hems/sensor-ingest/internal/runtime"
)

var (
	log      logr.Logger
	pipeline *runtime.Pipeline
)

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		panic(err)
	}

	log, _, err = logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Errorf("failed to init logger: %w", err))
	}
	log.Info("sensor ingest: cold start",
		"influx", cfg.Influx.URL(), "bucket", cfg.Influx.Bucket(),
		"metadata", cfg.Metadata.Backend, "deadletter", cfg.DeadLetter)

	metrics.Init(prometheus.DefaultRegisterer)

	pipeline, err = runtime.NewPipeline(context.Background(), cfg, log)
	if err != nil {
		log.Error(err, "failed to init pipeline")
		panic(err)
	}
}

func main() {
	lambda.Start(pipeline.Service.HandleRaw)
}

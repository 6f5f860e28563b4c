package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucaslui/hems/sensor-ingest/internal/broker"
	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/logging"
	"github.com/lucaslui/hems/sensor-ingest/internal/metrics"
	"github.com/lucaslui/hems/sensor-ingest/internal/mqtt"
	"github.com/lucaslui/hems/sensor-ingest/internal/runtime"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		// 2: bad configuration values, 1: the config file could not be read.
		if config.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	log, flush, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer flush()

	if !cfg.Kafka.Enabled() && !cfg.MQTT.Enabled() {
		log.Error(errors.New("no transport configured"), "set KAFKA_INPUT_TOPIC or MQTT_BROKER_URL")
		os.Exit(2)
	}

	log.Info("boot",
		"influx", cfg.Influx.URL(), "bucket", cfg.Influx.Bucket(),
		"metadata", cfg.Metadata.Backend, "deadletter", cfg.DeadLetter,
		"kafka", cfg.Kafka.Enabled(), "mqtt", cfg.MQTT.Enabled())

	metrics.Init(prometheus.DefaultRegisterer)

	ctx, cancel := runtime.SetupGracefulShutdown(context.Background(), log)
	defer cancel()

	pipeline, err := runtime.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Error(err, "failed to init pipeline")
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Error(err, "close pipeline")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "http server")
			cancel()
		}
	}()

	var wg sync.WaitGroup

	if cfg.Kafka.Enabled() {
		kc := broker.NewKafkaClient(cfg.Kafka)
		defer kc.Close()

		consumer := broker.NewConsumer(kc, pipeline.Service, cfg.Kafka.Workers, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error(err, "kafka consumer stopped")
			}
		}()
	}

	if cfg.MQTT.Enabled() {
		client := mqtt.BuildMQTTClient(ctx, cfg.MQTT, pipeline.Service, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqtt.ConnectWithBackoff(ctx, client, log, time.Second, 30*time.Second); err != nil {
				return
			}
			<-ctx.Done()
			client.Disconnect(250)
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	wg.Wait()
}

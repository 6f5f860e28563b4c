package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type EventHandler interface {
	HandleRaw(ctx context.Context, raw json.RawMessage) (model.Ack, error)
}

// Consumer feeds every record of the input topic to the handler, one record
// per invocation. A record is committed once the handler returned, whatever
// the outcome: rejected events are kept by the dead-letter recorder, not by
// withholding the offset. Workers finish out of order, so a single committer
// advances each partition only past records that are all handled.
type Consumer struct {
	src     MessageSource
	handler EventHandler
	workers int
	logger  logr.Logger
}

func NewConsumer(src MessageSource, handler EventHandler, workers int, logger logr.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{src: src, handler: handler, workers: workers, logger: logger.WithName("kafka")}
}

// Run blocks until ctx is cancelled or the source is closed. In-flight records
// finish and are committed before it returns.
func (c *Consumer) Run(ctx context.Context) error {
	msgCh := make(chan kafka.Message, c.workers*2)
	ackCh := make(chan kafka.Message, c.workers*2)
	marks := newWatermarks()

	committerDone := make(chan struct{})
	go func() {
		defer close(committerDone)
		c.commitLoop(context.WithoutCancel(ctx), marks, ackCh)
	}()

	var wg sync.WaitGroup
	wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go func() {
			defer wg.Done()
			for m := range msgCh {
				c.handle(ctx, m)
				ackCh <- m
			}
		}()
	}

	for {
		m, err := c.src.FetchMessage(ctx)
		if err != nil {
			// io.EOF: the reader was closed.
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			c.logger.Error(err, "fetch failed")
			select {
			case <-ctx.Done():
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		marks.track(m)
		msgCh <- m
	}

	close(msgCh)
	wg.Wait()
	close(ackCh)
	<-committerDone
	return nil
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	ack, err := c.handler.HandleRaw(context.WithoutCancel(ctx), json.RawMessage(m.Value))
	if err != nil {
		c.logger.V(1).Info("record rejected", "partition", m.Partition, "offset", m.Offset,
			"payload", config.Truncate(m.Value, 256), "error", err.Error())
		return
	}
	c.logger.V(1).Info("record written", "partition", m.Partition, "offset", m.Offset, "sensorID", ack.SensorID)
}

func (c *Consumer) commitLoop(ctx context.Context, marks *watermarks, ackCh <-chan kafka.Message) {
	for m := range ackCh {
		upTo, ok := marks.complete(m)
		if !ok {
			continue
		}
		commitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.src.CommitMessages(commitCtx, upTo); err != nil {
			c.logger.Error(err, "commit failed", "partition", upTo.Partition, "offset", upTo.Offset)
		}
		cancel()
	}
}

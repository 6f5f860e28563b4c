// Package deadletter keeps events that did not reach the time-series sink,
// together with the stage and error that stopped them.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"github.com/lucaslui/hems/sensor-ingest/internal/model"
	"github.com/lucaslui/hems/sensor-ingest/internal/storage"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaRecorder publishes dead letters to a topic, keyed by request id.
type KafkaRecorder struct {
	w MessageWriter
}

func NewKafkaRecorder(w MessageWriter) *KafkaRecorder {
	return &KafkaRecorder{w: w}
}

func (k *KafkaRecorder) Record(ctx context.Context, dl model.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(dl.RequestID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "stage", Value: []byte(dl.Stage)},
			{Key: "kind", Value: []byte(dl.Kind)},
		},
	})
}

type Uploader interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
}

// ObjectRecorder writes one JSON object per dead letter.
type ObjectRecorder struct {
	up       Uploader
	basePath string
}

func NewObjectRecorder(up Uploader, basePath string) *ObjectRecorder {
	if basePath == "" {
		basePath = "rejected"
	}
	return &ObjectRecorder{up: up, basePath: basePath}
}

func (o *ObjectRecorder) Record(ctx context.Context, dl model.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	name := storage.BuildObjectPath(o.basePath+"/"+dl.Kind, dl.ReceivedAt, dl.RequestID+".json")
	if err := o.up.Upload(ctx, name, bytes.NewReader(b), int64(len(b)), "application/json"); err != nil {
		return fmt.Errorf("upload dead letter %s: %w", name, err)
	}
	return nil
}

package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/lucaslui/hems/sensor-ingest/internal/identity"
	"github.com/lucaslui/hems/sensor-ingest/internal/metadata"
	"github.com/lucaslui/hems/sensor-ingest/internal/metrics"
	"github.com/lucaslui/hems/sensor-ingest/internal/model"
	"github.com/lucaslui/hems/sensor-ingest/internal/point"
)

type MetadataResolver interface {
	Resolve(ctx context.Context, key string) (metadata.Record, metadata.Outcome)
}

type PointWriter interface {
	Write(ctx context.Context, p model.MeasurementPoint) error
}

type DeadLetterRecorder interface {
	Record(ctx context.Context, dl model.DeadLetter) error
}

// Service holds dependencies for one enrichment-and-write invocation.
// It keeps no state between invocations; the writer owns the shared sink
// connection.
type Service struct {
	Logger      logr.Logger
	Resolver    MetadataResolver
	Writer      PointWriter
	DeadLetters DeadLetterRecorder

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}

// HandleRaw decodes a JSON event and processes it. It is the entrypoint for
// the Lambda runtime and the broker consumers.
func (s *Service) HandleRaw(ctx context.Context, raw json.RawMessage) (model.Ack, error) {
	receivedAt := s.now()
	reqID := requestID(ctx)

	var evt model.TelemetryEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		err = fail(ErrMalformedInput, StageParsed, fmt.Errorf("decode event: %w", err))
		s.report(ctx, reqID, receivedAt, raw, err)
		return model.Ack{}, err
	}
	return s.process(ctx, reqID, receivedAt, evt, raw)
}

// HandleRequest processes an already decoded event.
func (s *Service) HandleRequest(ctx context.Context, evt model.TelemetryEvent) (model.Ack, error) {
	raw, _ := json.Marshal(evt)
	return s.process(ctx, requestID(ctx), s.now(), evt, raw)
}

func (s *Service) process(ctx context.Context, reqID string, receivedAt time.Time, evt model.TelemetryEvent, raw []byte) (ack model.Ack, err error) {
	stage := StageReceived

	defer func() {
		s.report(ctx, reqID, receivedAt, raw, err)
	}()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error(fmt.Errorf("%v", r), "panic recovered in handler", "requestID", reqID, "stage", stage)
			ack, err = model.Ack{}, fail(ErrInternal, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	pressure, perr := point.ParseReading(model.FieldPressureValue, evt.Pressure)
	viscosity, verr := point.ParseReading(model.FieldViscosity, evt.Viscosity)
	if perr != nil || verr != nil {
		return model.Ack{}, fail(ErrMalformedInput, StageParsed, errors.Join(perr, verr))
	}
	stage = StageParsed

	id, err := identity.Derive(evt.DeviceID, evt.ClientID)
	if err != nil {
		return model.Ack{}, fail(ErrInvalidInput, StageIdentityDerived, err)
	}
	stage = StageIdentityDerived

	rec, outcome := s.Resolver.Resolve(ctx, evt.MetaKey)
	metrics.IncMetadataLookup(string(outcome))
	stage = StageMetadataResolved

	ts := receivedAt
	if evt.Timestamp != nil && !evt.Timestamp.IsZero() {
		ts = evt.Timestamp.UTC()
	}
	p, err := point.Build(id, rec, pressure, viscosity, ts)
	if err != nil {
		return model.Ack{}, fail(ErrMalformedInput, StagePointBuilt, err)
	}
	stage = StagePointBuilt

	writeStart := time.Now()
	if err := s.Writer.Write(ctx, p); err != nil {
		metrics.ObserveSinkWrite(metrics.ResultError, time.Since(writeStart))
		return model.Ack{}, fail(ErrSinkWrite, StageWritten, err)
	}
	metrics.ObserveSinkWrite(metrics.ResultSuccess, time.Since(writeStart))

	return model.Ack{Status: "ok", RequestID: reqID, SensorID: string(id)}, nil
}

// report emits the single log line and metrics of an invocation, and records
// a dead letter when it failed.
func (s *Service) report(ctx context.Context, reqID string, receivedAt time.Time, raw []byte, err error) {
	kind := KindOf(err)
	metrics.ObserveInvocation(kind, s.now().Sub(receivedAt))

	log := s.Logger.WithValues("requestID", reqID, "outcome", kind)
	switch {
	case err == nil:
		log.Info("point written", "stage", StageResponded)
		return
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedInput):
		log.Info("event rejected", "stage", StageOf(err), "error", err.Error())
	default:
		log.Error(err, "event not written", "stage", StageOf(err))
	}

	if s.DeadLetters == nil {
		return
	}
	dl := model.DeadLetter{
		RequestID:  reqID,
		Stage:      string(StageOf(err)),
		Kind:       kind,
		Error:      err.Error(),
		ReceivedAt: receivedAt,
	}
	if json.Valid(raw) {
		dl.Original = json.RawMessage(raw)
	}
	if rerr := s.DeadLetters.Record(ctx, dl); rerr != nil {
		metrics.IncDeadLetter(metrics.ResultError)
		log.Error(rerr, "failed to record dead letter")
		return
	}
	metrics.IncDeadLetter(metrics.ResultSuccess)
}

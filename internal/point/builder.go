package point

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

var ErrNotNumeric = errors.New("value is not a finite number")

// jsonNumber is the JSON number grammar. strconv alone would also take hex,
// underscores and a leading '+'.
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// ParseReading converts a text-encoded reading into a finite float.
func ParseReading(name string, r model.Reading) (float64, error) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrNotNumeric, name)
	}
	if !jsonNumber.MatchString(s) {
		return 0, fmt.Errorf("%w: %s=%q", ErrNotNumeric, name, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrNotNumeric, name, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrNotNumeric, name, s)
	}
	return v, nil
}

// Build assembles the pressure point. Metadata is merged after the synthetic
// sensorID tag, so a metadata key named sensorID replaces it.
func Build(id model.SensorIdentity, metadata map[string]string, pressure, viscosity float64, ts time.Time) (model.MeasurementPoint, error) {
	for name, v := range map[string]float64{model.FieldPressureValue: pressure, model.FieldViscosity: viscosity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.MeasurementPoint{}, fmt.Errorf("%w: %s=%v", ErrNotNumeric, name, v)
		}
	}

	tags := make(model.TagSet, len(metadata)+1)
	tags[model.TagSensorID] = string(id)
	for k, v := range metadata {
		tags[k] = v
	}

	return model.MeasurementPoint{
		Measurement: model.MeasurementPressure,
		Fields: map[string]float64{
			model.FieldPressureValue: pressure,
			model.FieldViscosity:     viscosity,
		},
		Tags:      tags,
		Timestamp: ts,
	}, nil
}

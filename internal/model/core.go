package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MeasurementPressure = "pressure"

	FieldPressureValue = "pressureValue"
	FieldViscosity     = "viscosity"

	TagSensorID = "sensorID"
)

// TelemetryEvent is the inbound sensor reading as published by the device rule.
type TelemetryEvent struct {
	Pressure  Reading    `json:"pressure"`
	Viscosity Reading    `json:"viscosity"`
	ClientID  string     `json:"clientid"`
	DeviceID  string     `json:"deviceid"`
	MetaKey   string     `json:"metakey"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Reading is a numeric value carried as text. Devices normally send a JSON
// string ("12.5"); a bare JSON number is accepted and kept verbatim.
type Reading string

func (r *Reading) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Reading(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("reading must be a string or number: %s", b)
	}
	*r = Reading(n.String())
	return nil
}

// SensorIdentity identifies one device/client pair.
type SensorIdentity string

// TagSet maps tag names to values. It always carries TagSensorID.
type TagSet map[string]string

type MeasurementPoint struct {
	Measurement string
	Fields      map[string]float64
	Tags        TagSet
	Timestamp   time.Time
}

// Ack is returned to the caller when the point was written.
type Ack struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
	SensorID  string `json:"sensorId"`
}

// DeadLetter describes an event that did not reach the sink.
type DeadLetter struct {
	RequestID  string          `json:"requestId"`
	Stage      string          `json:"stage"`
	Kind       string          `json:"kind"`
	Error      string          `json:"error"`
	Original   json.RawMessage `json:"original,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

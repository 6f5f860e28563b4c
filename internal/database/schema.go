package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

var ErrSchemaViolation = errors.New("point does not match declared schema")

type FieldType int

const (
	FieldFloat FieldType = iota
	FieldInteger
	FieldString
	FieldBoolean
)

func (f FieldType) String() string {
	switch f {
	case FieldFloat:
		return "float"
	case FieldInteger:
		return "integer"
	case FieldString:
		return "string"
	case FieldBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Schema is the declared shape of one measurement. Fields are fixed at
// declaration. Tag names are not: metadata keys are data driven, so a tag
// that was never declared is registered on first use instead of rejected.
type Schema struct {
	measurement string
	fields      map[string]FieldType

	mu   sync.RWMutex
	tags map[string]struct{}
}

func DeclareSchema(measurement string, fields map[string]FieldType, tagNames []string) *Schema {
	s := &Schema{
		measurement: measurement,
		fields:      make(map[string]FieldType, len(fields)),
		tags:        make(map[string]struct{}, len(tagNames)),
	}
	for k, v := range fields {
		s.fields[k] = v
	}
	for _, t := range tagNames {
		s.tags[t] = struct{}{}
	}
	return s
}

// PressureSchema declares the pressure measurement written by this service.
func PressureSchema() *Schema {
	return DeclareSchema(model.MeasurementPressure, map[string]FieldType{
		model.FieldPressureValue: FieldFloat,
		model.FieldViscosity:     FieldFloat,
	}, []string{model.TagSensorID})
}

func (s *Schema) Measurement() string { return s.measurement }

// TagNames returns the declared tag names, sorted.
func (s *Schema) TagNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Admit validates p against the schema and registers any tag names it has not
// seen before. The newly registered names are returned.
func (s *Schema) Admit(p model.MeasurementPoint) ([]string, error) {
	if p.Measurement != s.measurement {
		return nil, fmt.Errorf("%w: measurement %q, declared %q", ErrSchemaViolation, p.Measurement, s.measurement)
	}
	for name := range p.Fields {
		ft, ok := s.fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: undeclared field %q", ErrSchemaViolation, name)
		}
		if ft != FieldFloat {
			return nil, fmt.Errorf("%w: field %q declared %s, got float", ErrSchemaViolation, name, ft)
		}
	}
	for name := range s.fields {
		if _, ok := p.Fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, name)
		}
	}

	var unknown []string
	s.mu.RLock()
	for name := range p.Tags {
		if _, ok := s.tags[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	s.mu.RUnlock()
	if len(unknown) == 0 {
		return nil, nil
	}

	var registered []string
	s.mu.Lock()
	for _, name := range unknown {
		if _, ok := s.tags[name]; !ok {
			s.tags[name] = struct{}{}
			registered = append(registered, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(registered)
	return registered, nil
}

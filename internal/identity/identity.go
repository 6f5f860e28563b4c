// Package identity derives the sensor identity stored as the sensorID tag.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucaslui/hems/sensor-ingest/internal/model"
)

var ErrMissingField = errors.New("missing identity field")

// Derive concatenates deviceID and clientID with no separator. Existing series
// are keyed on this value, so the ambiguity for variable-length ids
// ("12"+"3" == "1"+"23") is kept rather than changing stored identifiers.
func Derive(deviceID, clientID string) (model.SensorIdentity, error) {
	if strings.TrimSpace(deviceID) == "" {
		return "", fmt.Errorf("%w: deviceid", ErrMissingField)
	}
	if strings.TrimSpace(clientID) == "" {
		return "", fmt.Errorf("%w: clientid", ErrMissingField)
	}
	return model.SensorIdentity(deviceID + clientID), nil
}

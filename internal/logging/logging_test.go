package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		for _, level := range []string{"debug", "info"} {
			logger, flush, err := New(level, format)
			require.NoError(t, err)
			assert.Equal(t, level == "debug", logger.V(1).Enabled())
			flush()
		}
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, _, err := New("trace", "json")
	require.Error(t, err)

	_, _, err = New("info", "xml")
	require.Error(t, err)
}

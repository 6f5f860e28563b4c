package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/hems/sensor-ingest/internal/config"
)

func TestBuildObjectPath(t *testing.T) {
	ts := time.Date(2024, 1, 9, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "dl/year=2024/month=01/day=10/x.json", BuildObjectPath("dl", ts, "x.json"))
}

func TestNewMinIO(t *testing.T) {
	c, err := NewMinIO(config.MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "sensor-deadletters",
	})
	require.NoError(t, err)
	assert.Equal(t, "sensor-deadletters", c.bucket)
}

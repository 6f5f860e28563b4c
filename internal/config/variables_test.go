package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("INFLUXDB", "sensors")
	t.Setenv("INFLUXDBUSRNAME", "writer")
	t.Setenv("INFLUXDBPWD", "secret")
	t.Setenv("INFLUXDBHOST", "influx.local")
	t.Setenv("INFLUXDBPORT", "8086")
	t.Setenv("DYNAMODB_TABLE", "sensor-metadata")
}

func TestLoadConfigDefaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://influx.local:8086", cfg.Influx.URL())
	assert.Equal(t, "sensors", cfg.Influx.Bucket())
	assert.Equal(t, BackendDynamoDB, cfg.Metadata.Backend)
	assert.Equal(t, "metakey", cfg.Metadata.KeyAttribute)
	assert.Equal(t, DeadLetterNone, cfg.DeadLetter)
	assert.Equal(t, 2*time.Second, cfg.Metadata.RedisTimeout)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadConfigReportsEveryMissingKey(t *testing.T) {
	for _, k := range []string{"INFLUXDB", "INFLUXDBUSRNAME", "INFLUXDBPWD", "INFLUXDBHOST", "INFLUXDBPORT", "DYNAMODB_TABLE"} {
		t.Setenv(k, "")
	}

	_, err := LoadConfig()
	require.Error(t, err)
	require.True(t, IsValidation(err))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"missing INFLUXDB",
		"missing INFLUXDBUSRNAME",
		"missing INFLUXDBPWD",
		"missing INFLUXDBHOST",
		"missing INFLUXDBPORT",
		"missing DYNAMODB_TABLE",
	}, verr.Problems)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("INFLUXDBPORT", "eighty")
	t.Setenv("METADATA_BACKEND", "etcd")
	t.Setenv("MQTT_QOS", "5")
	t.Setenv("WORKERS", "x")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INFLUXDBPORT invalid")
	assert.Contains(t, err.Error(), "METADATA_BACKEND invalid")
	assert.Contains(t, err.Error(), "MQTT_QOS invalid")
	assert.Contains(t, err.Error(), "WORKERS invalid")
}

func TestLoadConfigDeadLetterRequirements(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("DEADLETTER_BACKEND", "minio")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing MINIO_ENDPOINT")

	t.Setenv("DEADLETTER_BACKEND", "kafka")
	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS required")

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("DYNAMODB_TABLE", "")

	path := filepath.Join(t.TempDir(), "sensor-ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
influx:
  retention_policy: autogen
metadata:
  backend: redis
  redis_addr: redis.local:6379
  redis_timeout: 500ms
kafka:
  brokers: [k1:9092]
  input_topic: sensor-telemetry
log_level: debug
`), 0o600))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sensors/autogen", cfg.Influx.Bucket())
	assert.Equal(t, BackendRedis, cfg.Metadata.Backend)
	assert.Equal(t, "redis.local:6379", cfg.Metadata.RedisAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.Metadata.RedisTimeout)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"

	DeadLetterNone  = "none"
	DeadLetterKafka = "kafka"
	DeadLetterMinIO = "minio"

	// ConfigFileEnv names an optional YAML file overlaid on the env values.
	ConfigFileEnv = "SENSOR_INGEST_CONFIG"
)

type InfluxConfig struct {
	Database        string `yaml:"database"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	Scheme          string `yaml:"scheme"`
	RetentionPolicy string `yaml:"retention_policy"`
}

// URL is the base address of the InfluxDB HTTP API.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s", c.Scheme, net.JoinHostPort(c.Host, c.Port))
}

// Bucket maps database and retention policy onto the 1.8 compatibility API.
func (c InfluxConfig) Bucket() string {
	if c.RetentionPolicy == "" {
		return c.Database
	}
	return c.Database + "/" + c.RetentionPolicy
}

type MetadataConfig struct {
	Backend        string        `yaml:"backend"`
	DynamoTable    string        `yaml:"dynamodb_table"`
	KeyAttribute   string        `yaml:"key_attribute"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	RedisNamespace string        `yaml:"redis_namespace"`
	RedisTimeout   time.Duration `yaml:"redis_timeout"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	GroupID    string   `yaml:"group_id"`
	InputTopic string   `yaml:"input_topic"`
	DLQTopic   string   `yaml:"dlq_topic"`
	Workers    int      `yaml:"workers"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.InputTopic != ""
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
}

func (c MQTTConfig) Enabled() bool {
	return c.BrokerURL != ""
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	BasePath  string `yaml:"base_path"`
	UseTLS    bool   `yaml:"use_tls"`
}

type Config struct {
	Influx     InfluxConfig   `yaml:"influx"`
	Metadata   MetadataConfig `yaml:"metadata"`
	Kafka      KafkaConfig    `yaml:"kafka"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	MinIO      MinIOConfig    `yaml:"minio"`
	DeadLetter string         `yaml:"deadletter"`

	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type errList []string

func (e *errList) addf(format string, a ...any) {
	*e = append(*e, fmt.Sprintf(format, a...))
}
func (e *errList) add(msg string) { *e = append(*e, msg) }
func (e *errList) has() bool      { return len(*e) > 0 }

// ValidationError lists every problem found while loading the configuration.
type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(v.Problems, "; ")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int, errs *errList) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		errs.addf("%s invalid (expected int): %q", key, v)
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool, errs *errList) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		errs.addf("%s invalid (expected bool): %q", key, v)
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration, errs *errList) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		errs.addf("%s invalid (expected duration): %q", key, v)
		return fallback
	}
	return d
}

func parseBrokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if s := strings.TrimSpace(b); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func ensureOneOf(key, val string, allowed []string, errs *errList) {
	for _, a := range allowed {
		if val == a {
			return
		}
	}
	errs.addf("%s invalid (allowed: %s): %q", key, strings.Join(allowed, ", "), val)
}

func loadEnv(errs *errList) *Config {
	qos := getenvInt("MQTT_QOS", 1, errs)
	if qos < 0 || qos > 2 {
		errs.addf("MQTT_QOS invalid (0..2): %d", qos)
		qos = 1
	}

	return &Config{
		Influx: InfluxConfig{
			Database:        getenv("INFLUXDB", ""),
			Username:        getenv("INFLUXDBUSRNAME", ""),
			Password:        getenv("INFLUXDBPWD", ""),
			Host:            getenv("INFLUXDBHOST", ""),
			Port:            getenv("INFLUXDBPORT", ""),
			Scheme:          getenv("INFLUXDB_SCHEME", "http"),
			RetentionPolicy: getenv("INFLUXDB_RETENTION_POLICY", ""),
		},
		Metadata: MetadataConfig{
			Backend:        getenv("METADATA_BACKEND", BackendDynamoDB),
			DynamoTable:    getenv("DYNAMODB_TABLE", ""),
			KeyAttribute:   getenv("METADATA_KEY_ATTRIBUTE", "metakey"),
			RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  getenv("REDIS_PASSWORD", ""),
			RedisDB:        getenvInt("REDIS_DB", 0, errs),
			RedisNamespace: getenv("REDIS_NAMESPACE", "sensor-meta"),
			RedisTimeout:   getenvDuration("REDIS_TIMEOUT", 2*time.Second, errs),
		},
		Kafka: KafkaConfig{
			Brokers:    parseBrokers(getenv("KAFKA_BROKERS", "")),
			GroupID:    getenv("KAFKA_GROUP_ID", "sensor-ingest"),
			InputTopic: getenv("KAFKA_INPUT_TOPIC", ""),
			DLQTopic:   getenv("KAFKA_DLQ_TOPIC", "sensor-ingest-dlq"),
			Workers:    getenvInt("WORKERS", 4, errs),
		},
		MQTT: MQTTConfig{
			BrokerURL: getenv("MQTT_BROKER_URL", ""),
			ClientID:  getenv("MQTT_CLIENT_ID", "sensor-ingest"),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			Topic:     getenv("MQTT_TOPIC", "sensors/+/telemetry"),
			QoS:       byte(qos),
		},
		MinIO: MinIOConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", ""),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "sensor-deadletters"),
			BasePath:  getenv("MINIO_BASE_PATH", "rejected"),
			UseTLS:    getenvBool("MINIO_USE_TLS", false, errs),
		},
		DeadLetter: getenv("DEADLETTER_BACKEND", DeadLetterNone),

		HTTPAddr:  getenv("HTTP_ADDR", ":8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
	}
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func validate(c *Config, errs *errList) {
	for _, r := range []struct{ key, val string }{
		{"INFLUXDB", c.Influx.Database},
		{"INFLUXDBUSRNAME", c.Influx.Username},
		{"INFLUXDBPWD", c.Influx.Password},
		{"INFLUXDBHOST", c.Influx.Host},
		{"INFLUXDBPORT", c.Influx.Port},
	} {
		if r.val == "" {
			errs.addf("missing %s", r.key)
		}
	}
	if c.Influx.Port != "" {
		if p, err := strconv.Atoi(c.Influx.Port); err != nil || p <= 0 || p > 65535 {
			errs.addf("INFLUXDBPORT invalid: %q", c.Influx.Port)
		}
	}
	ensureOneOf("INFLUXDB_SCHEME", c.Influx.Scheme, []string{"http", "https"}, errs)

	ensureOneOf("METADATA_BACKEND", c.Metadata.Backend, []string{BackendDynamoDB, BackendRedis}, errs)
	switch c.Metadata.Backend {
	case BackendDynamoDB:
		if c.Metadata.DynamoTable == "" {
			errs.add("missing DYNAMODB_TABLE")
		}
	case BackendRedis:
		if c.Metadata.RedisAddr == "" {
			errs.add("missing REDIS_ADDR")
		}
	}

	ensureOneOf("DEADLETTER_BACKEND", c.DeadLetter, []string{DeadLetterNone, DeadLetterKafka, DeadLetterMinIO}, errs)
	switch c.DeadLetter {
	case DeadLetterKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs.add("KAFKA_BROKERS required for kafka dead letters")
		}
		if c.Kafka.DLQTopic == "" {
			errs.add("missing KAFKA_DLQ_TOPIC")
		}
	case DeadLetterMinIO:
		if c.MinIO.Endpoint == "" {
			errs.add("missing MINIO_ENDPOINT")
		}
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			errs.add("missing MINIO_ACCESS_KEY/MINIO_SECRET_KEY")
		}
		if c.MinIO.Bucket == "" {
			errs.add("missing MINIO_BUCKET")
		}
	}

	if c.Kafka.InputTopic != "" && len(c.Kafka.Brokers) == 0 {
		errs.add("KAFKA_BROKERS required when KAFKA_INPUT_TOPIC is set")
	}
	if c.Kafka.Workers <= 0 {
		errs.add("WORKERS must be > 0")
	}
	if c.MQTT.Enabled() && c.MQTT.Topic == "" {
		errs.add("missing MQTT_TOPIC")
	}
	if c.MQTT.QoS > 2 {
		errs.addf("MQTT_QOS invalid (0..2): %d", c.MQTT.QoS)
	}

	ensureOneOf("LOG_LEVEL", c.LogLevel, []string{"debug", "info"}, errs)
	ensureOneOf("LOG_FORMAT", c.LogFormat, []string{"json", "console"}, errs)
}

// LoadConfig reads the environment, overlays the optional YAML file and
// validates the result. All problems are reported together.
func LoadConfig() (*Config, error) {
	var errs errList

	cfg := loadEnv(&errs)
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	validate(cfg, &errs)

	if errs.has() {
		return nil, &ValidationError{Problems: errs}
	}
	return cfg, nil
}

// IsValidation reports whether err came from configuration validation.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

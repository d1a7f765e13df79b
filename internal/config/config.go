package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Serial    SerialConfig    `mapstructure:"serial"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type SerialConfig struct {
	Port          string
	BaudRate      uint   `mapstructure:"baud_rate"`
	UnitId        uint   `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
	CommandsEnable    bool   `mapstructure:"commands_enable"`
}

type PublisherConfig struct {
	IntervalMillis    uint32 `mapstructure:"interval_millis"`
	PollTimeoutMillis uint32 `mapstructure:"poll_timeout_millis"`
	BackoffMillis     uint32 `mapstructure:"backoff_millis"`
}

type RetryConfig struct {
	Attempts      uint   `mapstructure:"attempts"`
	BackoffMillis uint32 `mapstructure:"backoff_millis"`
}

type EstimatorConfig struct {
	PollIntervalMillis   uint32  `mapstructure:"poll_interval_millis"`
	SampleIntervalMillis uint32  `mapstructure:"sample_interval_millis"`
	ReserveFloor         float64 `mapstructure:"reserve_floor"`
}

func (c SerialConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c PublisherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMillis) * time.Millisecond
}

func (c PublisherConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMillis) * time.Millisecond
}

func (c PublisherConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

func (c RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

func (c EstimatorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c EstimatorConfig) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMillis) * time.Millisecond
}

// Check validates bounds that viper cannot express.
func (c *Config) Check() error {
	if c.Serial.Port == "" {
		return errors.New("config param serial.port is required")
	}
	if c.Serial.UnitId > 247 {
		return errors.New("config param serial.unit_id should be <= 247")
	}
	if c.Publisher.IntervalMillis < 1000 {
		return errors.New("config param publisher.interval_millis should be >= 1000")
	}
	if c.Retry.Attempts < 1 {
		return errors.New("config param retry.attempts should be >= 1")
	}
	if c.Estimator.ReserveFloor < 0 || c.Estimator.ReserveFloor > 100 {
		return errors.New("config param estimator.reserve_floor should be within [0, 100]")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

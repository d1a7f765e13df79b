package util

import (
	"github.com/berfenger/felicity2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Port:          "/dev/null",
			BaudRate:      2400,
			UnitId:        1,
			TimeoutMillis: 4000,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "felicity",
		},
		Publisher: config.PublisherConfig{
			IntervalMillis:    10000,
			PollTimeoutMillis: 1000,
			BackoffMillis:     10000,
		},
		Retry: config.RetryConfig{
			Attempts:      3,
			BackoffMillis: 1000,
		},
		Estimator: config.EstimatorConfig{
			PollIntervalMillis:   5000,
			SampleIntervalMillis: 5000,
			ReserveFloor:         20,
		},
		Port: 8080,
	}
}

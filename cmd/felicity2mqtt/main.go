package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/berfenger/felicity2mqtt/internal/config"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {

	flags := registerFlags()
	pflag.Parse()

	if viper.GetBool("version") {
		fmt.Println("felicity2mqtt", versioninfo.Short())
		return
	}

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(2)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("main@start felicity2mqtt", zap.String("version", versioninfo.Short()))

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("main@start failed to init inverter transport", zap.Error(err))
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, flags); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("main@run error", zap.Error(err))
		app.Shutdown()
		os.Exit(1)
	}
}

// cliFlags are the one-shot modes. Everything else lives in viper.
type cliFlags struct {
	printAll    bool
	scanUnknown bool
	scanFrom    uint16
	scanTo      uint16
	estimate    bool
	write       string
}

func registerFlags() *cliFlags {
	f := &cliFlags{}
	pflag.BoolVar(&f.printAll, "print-all", false, "read and print every known field once")
	pflag.BoolVar(&f.scanUnknown, "scan-unknown", false, "read a register range and print the raw values")
	pflag.Uint16Var(&f.scanFrom, "scan-from", 0x1100, "first register address of --scan-unknown")
	pflag.Uint16Var(&f.scanTo, "scan-to", 0x112F, "last register address of --scan-unknown")
	pflag.BoolVar(&f.estimate, "estimate", false, "run one battery runtime estimation")
	pflag.StringVar(&f.write, "write", "", "write a setting, name=value")

	pflag.String("config", "", "yaml config file")
	pflag.Bool("version", false, "print version and exit")
	pflag.String("serial-port", "", "serial device of the inverter")
	pflag.String("mqtt-server", "", "MQTT broker host, enables the telemetry loop")
	pflag.String("mqtt-prefix", "", "MQTT topic prefix")
	pflag.String("log-level", "", "trace|debug|info|warn|error|fatal")

	viper.BindPFlag("config", pflag.Lookup("config"))
	viper.BindPFlag("version", pflag.Lookup("version"))
	viper.BindPFlag("serial.port", pflag.Lookup("serial-port"))
	viper.BindPFlag("mqtt.host", pflag.Lookup("mqtt-server"))
	viper.BindPFlag("mqtt.base_topic", pflag.Lookup("mqtt-prefix"))
	viper.BindPFlag("log_level", pflag.Lookup("log-level"))
	return f
}

func initConfig() (*config.Config, error) {

	// alias PORT => FELICITY_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("FELICITY_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("felicity")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	cfgFile := viper.GetString("config")
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		} else {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(viper.GetString("log_level"))

	// --mqtt-server implies the telemetry loop
	if pflag.Lookup("mqtt-server").Changed {
		cfg.MQTT.Enable = true
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.Check(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud_rate", 2400)
	viper.SetDefault("serial.unit_id", 1)
	viper.SetDefault("serial.timeout_millis", 4000)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.base_topic", "felicity")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.commands_enable", false)
	viper.SetDefault("publisher.interval_millis", 10000)
	viper.SetDefault("publisher.poll_timeout_millis", 1000)
	viper.SetDefault("publisher.backoff_millis", 10000)
	viper.SetDefault("retry.attempts", 3)
	viper.SetDefault("retry.backoff_millis", 1000)
	viper.SetDefault("estimator.poll_interval_millis", 5000)
	viper.SetDefault("estimator.sample_interval_millis", 5000)
	viper.SetDefault("estimator.reserve_floor", 20)
	viper.SetDefault("port", 0)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/port"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"go.uber.org/zap"
)

const (
	DEFAULT_PUBLISH_INTERVAL  = 10 * time.Second
	DEFAULT_BUS_POLL_TIMEOUT  = 1 * time.Second
	DEFAULT_RECONNECT_BACKOFF = 10 * time.Second
	DEFAULT_TELEMETRY_PREFIX  = "felicity"
)

type TelemetryPublisherConfig struct {
	Prefix           string
	Interval         time.Duration
	PollTimeout      time.Duration
	ReconnectBackoff time.Duration
}

func DefaultTelemetryPublisherConfig() TelemetryPublisherConfig {
	return TelemetryPublisherConfig{
		Prefix:           DEFAULT_TELEMETRY_PREFIX,
		Interval:         DEFAULT_PUBLISH_INTERVAL,
		PollTimeout:      DEFAULT_BUS_POLL_TIMEOUT,
		ReconnectBackoff: DEFAULT_RECONNECT_BACKOFF,
	}
}

// PublishObserver receives publish outcomes, mostly for metrics.
type PublishObserver interface {
	Published(field string, err error)
	Reconnected(err error)
}

type CycleResult struct {
	Published   int
	Failed      int
	Reconnected bool
	BusError    error
}

type TelemetryPublisher struct {
	cfg      TelemetryPublisherConfig
	source   port.SnapshotSource
	bus      port.TelemetryBus
	clock    port.Clock
	observer PublishObserver
	logger   *zap.Logger
}

func NewTelemetryPublisher(cfg TelemetryPublisherConfig, source port.SnapshotSource, bus port.TelemetryBus,
	clock port.Clock, logger *zap.Logger) *TelemetryPublisher {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelemetryPublisher{
		cfg:    cfg,
		source: source,
		bus:    bus,
		clock:  clock,
		logger: logger.With(zap.String("component", "publisher")),
	}
}

func (p *TelemetryPublisher) WithObserver(observer PublishObserver) *TelemetryPublisher {
	p.observer = observer
	return p
}

func (p *TelemetryPublisher) Topic(field string) string {
	return fmt.Sprintf("%s/%s", p.cfg.Prefix, field)
}

// Run publishes one snapshot per interval until ctx is done.
func (p *TelemetryPublisher) Run(ctx context.Context) error {
	p.logger.Info("publisher@run starting", zap.String("prefix", p.cfg.Prefix), zap.Duration("interval", p.cfg.Interval))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.RunCycle()
		if err := ctx.Err(); err != nil {
			return err
		}
		p.clock.Sleep(p.cfg.Interval)
	}
}

// RunCycle reads a snapshot, publishes it and services the bus connection.
func (p *TelemetryPublisher) RunCycle() CycleResult {
	snapshot := p.source.ReadAll()
	result := p.PublishSnapshot(snapshot)
	busResult := p.ServiceBus()
	result.Reconnected = busResult.Reconnected
	result.BusError = busResult.BusError
	return result
}

func (p *TelemetryPublisher) PublishSnapshot(snapshot felicity_modbus.Snapshot) CycleResult {
	var result CycleResult
	if snapshot.IsEmpty() {
		p.logger.Error("publisher@cycle failed to read all registers")
		return result
	}
	for _, name := range snapshot.Names() {
		value, _ := snapshot.Get(name)
		payload := value.String()
		p.logger.Debug("publisher@cycle publish", zap.String("field", name), zap.String("value", payload))
		err := p.bus.Publish(p.Topic(name), payload)
		if p.observer != nil {
			p.observer.Published(name, err)
		}
		if err != nil {
			p.logger.Error("publisher@cycle publish error", zap.String("field", name), zap.Error(err))
			result.Failed++
			continue
		}
		result.Published++
	}
	return result
}

// ServiceBus polls the bus and tries a single reconnect when it reports a
// failure. A failed reconnect waits a fixed backoff, the next cycle retries.
func (p *TelemetryPublisher) ServiceBus() CycleResult {
	var result CycleResult
	err := p.bus.Poll(p.cfg.PollTimeout)
	if err == nil {
		return result
	}
	result.BusError = err
	p.logger.Error("publisher@bus error, reconnecting", zap.Error(err))
	rerr := p.bus.Reconnect()
	if p.observer != nil {
		p.observer.Reconnected(rerr)
	}
	if rerr != nil {
		p.logger.Error("publisher@bus failed to reconnect", zap.Error(rerr))
		p.clock.Sleep(p.cfg.ReconnectBackoff)
		return result
	}
	result.Reconnected = true
	return result
}

package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/config"
	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/core/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	DEFAULT_OPERATION_TIMEOUT = 5 * time.Second
	// commands waiting for the bus beyond this are dropped
	COMMAND_QUEUE_SIZE = 16
)

// Bus is the telemetry bus over an MQTT broker. Paho runs its network loop
// in its own goroutines, Poll only reports what that loop observed.
//
// Paho delivers messages in order on a single goroutine, so command handlers
// run on a worker of their own and the subscription callback only enqueues.
type Bus struct {
	client    *MQTTClient
	timeout   time.Duration
	lost      chan error
	logger    *zap.Logger
	mu        sync.Mutex
	onCommand func(ParsedMQTTCommand)
	sensors   []domain.GenericSensor
	commands  bool
	discovery bool

	commandQueue chan ParsedMQTTCommand
	done         chan struct{}
	workerOnce   sync.Once
	closeOnce    sync.Once
}

func NewBus(cfg *config.Config, logger *zap.Logger) *Bus {
	bus := newBus(cfg, logger)
	bus.client = CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, func(_ mqtt.Client, err error) {
		bus.connectionLost(err)
	})
	return bus
}

func newBus(cfg *config.Config, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		timeout:      DEFAULT_OPERATION_TIMEOUT,
		lost:         make(chan error, 1),
		logger:       logger.With(zap.String("component", "mqtt")),
		commands:     cfg.MQTT.CommandsEnable,
		discovery:    cfg.MQTT.HADiscoveryEnable,
		commandQueue: make(chan ParsedMQTTCommand, COMMAND_QUEUE_SIZE),
		done:         make(chan struct{}),
	}
}

func (b *Bus) Client() *MQTTClient {
	return b.client
}

// OnCommand registers the handler for settings commands. Must be set before Connect.
func (b *Bus) OnCommand(fn func(ParsedMQTTCommand)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCommand = fn
}

// SetDiscoverySensors sets the sensors announced to Home Assistant on every connect.
func (b *Bus) SetDiscoverySensors(sensors []domain.GenericSensor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensors = sensors
}

func (b *Bus) Connect() error {
	b.logger.Info("mqtt@connect connecting")
	if err := b.client.ConnectSync(b.timeout); err != nil {
		return err
	}
	return b.afterConnect()
}

func (b *Bus) afterConnect() error {
	if err := b.client.PublishSync(b.client.BridgeStateTopic(), MQTT_PAYLOAD_ONLINE, 0, true, b.timeout); err != nil {
		return err
	}

	b.mu.Lock()
	onCommand := b.onCommand
	sensors := b.sensors
	b.mu.Unlock()

	if b.commands && onCommand != nil {
		b.workerOnce.Do(func() {
			go b.dispatchCommands(onCommand)
		})
		b.client.SubscribeToCommandTopic(func(_ mqtt.Client, msg mqtt.Message) {
			cmd, err := b.client.ParseMQTTCommand(msg)
			if err != nil {
				b.logger.Warn("mqtt@command invalid command", zap.String("topic", msg.Topic()), zap.Error(err))
				return
			}
			b.enqueueCommand(*cmd)
		}, func(err error) {
			if err != nil {
				b.logger.Error("mqtt@connect subscribe error", zap.Error(err))
			}
		}, b.timeout)
	}

	if b.discovery && len(sensors) > 0 {
		if err := b.PublishDiscovery(sensors); err != nil {
			b.logger.Error("mqtt@connect discovery error", zap.Error(err))
		}
	}

	b.logger.Info("mqtt@connect connected")
	return nil
}

func (b *Bus) enqueueCommand(cmd ParsedMQTTCommand) {
	select {
	case b.commandQueue <- cmd:
	default:
		b.logger.Warn("mqtt@command queue full, command dropped", zap.String("setting", cmd.DeviceId), zap.String("payload", cmd.Payload))
	}
}

// dispatchCommands runs the handler for queued commands, one at a time and in
// arrival order, until the bus is closed.
func (b *Bus) dispatchCommands(onCommand func(ParsedMQTTCommand)) {
	for {
		select {
		case cmd := <-b.commandQueue:
			onCommand(cmd)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) PublishDiscovery(sensors []domain.GenericSensor) error {
	for i := range sensors {
		msg := GenericSensorToHADiscoveryMessage(b.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := HADiscoverySensorTopic(b.client.HADiscoveryTopic(), sensors[i])
		b.client.Publish(topic, payload, 0, true, func(error) {}, b.timeout)
	}
	return nil
}

// Publish sends a QoS 0 non retained message.
func (b *Bus) Publish(topic string, payload string) error {
	if !b.client.IsConnectionOpen() {
		return port.ErrBusDisconnected
	}
	return b.client.PublishSync(topic, payload, 0, false, b.timeout)
}

func (b *Bus) Poll(timeout time.Duration) error {
	select {
	case err := <-b.lost:
		return fmt.Errorf("%w: %w", port.ErrBusDisconnected, err)
	case <-time.After(timeout):
	}
	if !b.client.IsConnectionOpen() {
		return port.ErrBusDisconnected
	}
	return nil
}

func (b *Bus) Reconnect() error {
	// a stale signal would fail the next poll
	select {
	case <-b.lost:
	default:
	}
	return b.Connect()
}

func (b *Bus) Close() {
	if b.client.IsConnectionOpen() {
		err := b.client.PublishSync(b.client.BridgeStateTopic(), MQTT_PAYLOAD_OFFLINE, 0, true, 500*time.Millisecond)
		if err != nil {
			b.logger.Warn("mqtt@close failed to publish offline state", zap.Error(err))
		}
	}
	b.client.Disconnect(250 * time.Millisecond)
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

func (b *Bus) connectionLost(err error) {
	b.logger.Error("mqtt@default connection lost", zap.Error(err))
	select {
	case b.lost <- err:
	default:
	}
}

// ensure interface compliance
var _ port.TelemetryBus = (*Bus)(nil)

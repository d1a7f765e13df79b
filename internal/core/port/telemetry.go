package port

import (
	"errors"
	"time"

	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"
)

var ErrBusDisconnected = errors.New("telemetry bus disconnected")

// FieldReader reads a single normalized field.
type FieldReader interface {
	Read(name string) (felicity_modbus.Value, error)
}

type SnapshotSource interface {
	ReadAll() felicity_modbus.Snapshot
}

// TelemetryBus is a publish-only message bus.
type TelemetryBus interface {
	Publish(topic string, payload string) error
	// Poll services the bus event loop for up to timeout and reports its status.
	// A nil result means the connection is healthy.
	Poll(timeout time.Duration) error
	Reconnect() error
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// ensure interface compliance
var _ FieldReader = (*felicity_modbus.RegisterClient)(nil)
var _ SnapshotSource = (*felicity_modbus.SnapshotReader)(nil)

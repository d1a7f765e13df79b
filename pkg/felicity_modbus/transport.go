package felicity_modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Transport performs single holding register round trips.
// Framing, addressing and CRC are handled below this interface.
type Transport interface {
	Open() error
	Close() error
	ReadRegister(addr uint16) (uint16, error)
	WriteRegister(addr uint16, value uint16) error
}

type SerialConfig struct {
	Port     string
	BaudRate uint
	DataBits uint
	StopBits uint
	Timeout  time.Duration
	UnitId   uint8
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:     "/dev/ttyUSB0",
		BaudRate: 2400,
		DataBits: 8,
		StopBits: 1,
		Timeout:  4 * time.Second,
		UnitId:   1,
	}
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// SerialTransport is a Modbus RTU transport. The serial link tolerates a single
// outstanding request, every call holds mu for the whole round trip.
type SerialTransport struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

func (t *SerialTransport) Open() error {
	return t.client.Open()
}

func (t *SerialTransport) Close() error {
	return t.client.Close()
}

func (t *SerialTransport) ReadRegister(addr uint16) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer RecordTimer("ReadRegister", t.instrument)()
	return t.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (t *SerialTransport) WriteRegister(addr uint16, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer RecordTimer("WriteRegister", t.instrument)()
	return t.client.WriteRegister(addr, value)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus timing", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func CreateSerialTransport(cfg SerialConfig, logger *zap.Logger, instrumentation ...*ModbusInstrument) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("felicity: serial port required")
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", cfg.Port),
		Speed:    cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   modbus.PARITY_NONE,
		StopBits: cfg.StopBits,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.UnitId > 0 {
		err = client.SetUnitId(cfg.UnitId)
		if err != nil {
			return nil, err
		}
	}

	var inst []ModbusInstrument
	if logger != nil {
		inst = append(inst, *traceLoggerInstrumentation(logger.With(zap.String("target", "inverter"), zap.Uint8("unit_id", cfg.UnitId))))
	}
	for _, i := range instrumentation {
		if i != nil {
			inst = append(inst, *i)
		}
	}

	return &SerialTransport{
		client:     client,
		instrument: inst,
	}, nil
}

// ensure interface compliance
var _ Transport = (*SerialTransport)(nil)

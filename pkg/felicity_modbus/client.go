package felicity_modbus

import (
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"
)

// RegisterClient reads and writes single inverter registers through a Transport.
// It is meant to be owned by a single goroutine. Only the last value cache is
// guarded, bus ordering is left to the Transport.
type RegisterClient struct {
	transport  Transport
	retry      RetryPolicy
	logger     *zap.Logger
	mu         sync.Mutex
	lastValues map[string]Value
	observer   ReadObserver
}

// ReadObserver receives read outcomes, mostly for metrics.
type ReadObserver interface {
	ReadAttemptFailed(field string)
	ReadFailed(field string)
}

func NewRegisterClient(transport Transport, retry RetryPolicy, logger *zap.Logger) *RegisterClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegisterClient{
		transport:  transport,
		retry:      retry,
		logger:     logger,
		lastValues: make(map[string]Value),
	}
}

func (c *RegisterClient) WithObserver(observer ReadObserver) *RegisterClient {
	c.observer = observer
	return c
}

func (c *RegisterClient) Open() error {
	return c.transport.Open()
}

func (c *RegisterClient) Close() error {
	return c.transport.Close()
}

// Read reads and normalizes a catalog field.
func (c *RegisterClient) Read(name string) (Value, error) {
	field, ok := FieldByName(name)
	if !ok {
		return Value{}, &NotFoundError{Name: name}
	}
	reg, err := c.readWithRetry(field.Name, field.Address)
	if err != nil {
		return Value{}, err
	}
	raw := rawToInt(field, reg)
	value, err := Normalize(field.Name, raw)
	if err != nil {
		c.logger.Error("client@read normalize error", zap.String("field", field.Name), zap.Int("raw", raw), zap.Error(err))
		return Value{}, err
	}
	c.mu.Lock()
	c.lastValues[field.Name] = value
	c.mu.Unlock()
	return value, nil
}

// ReadRaw reads an arbitrary holding register with the retry policy applied.
func (c *RegisterClient) ReadRaw(address uint16) (uint16, error) {
	return c.readWithRetry("", address)
}

// ReadRawOnce reads an arbitrary holding register with a single attempt.
func (c *RegisterClient) ReadRawOnce(address uint16) (uint16, error) {
	reg, err := c.transport.ReadRegister(address)
	if err != nil {
		return 0, &ReadError{Address: address, Attempts: 1, Err: err}
	}
	return reg, nil
}

// Write issues a single register write. It is never retried: most settings
// registers are not known to be safe to write twice.
func (c *RegisterClient) Write(address uint16, value uint16) error {
	err := c.transport.WriteRegister(address, value)
	if err != nil {
		c.logger.Error("client@write error", zap.String("address", fmt.Sprintf("0x%04X", address)),
			zap.Uint16("value", value), zap.Error(err))
		return &WriteError{Address: address, Value: value, Err: err}
	}
	return nil
}

// LastValues returns a copy of the last successfully normalized value per field.
func (c *RegisterClient) LastValues() map[string]Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.lastValues)
}

func (c *RegisterClient) readWithRetry(name string, address uint16) (uint16, error) {
	var reg uint16
	attempts, err := c.retry.Do(func() error {
		var rerr error
		reg, rerr = c.transport.ReadRegister(address)
		return rerr
	}, func(attempt int, err error) {
		c.logger.Warn("client@read error",
			zap.String("field", name),
			zap.String("address", fmt.Sprintf("0x%04X", address)),
			zap.String("attempt", fmt.Sprintf("%d/%d", attempt, c.retry.MaxAttempts)),
			zap.Error(err))
		if c.observer != nil {
			c.observer.ReadAttemptFailed(name)
		}
	})
	if err != nil {
		if c.observer != nil {
			c.observer.ReadFailed(name)
		}
		return 0, &ReadError{Name: name, Address: address, Attempts: attempts, Err: err}
	}
	return reg, nil
}

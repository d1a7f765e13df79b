package service

import (
	"errors"
	"sync"
	"time"

	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"
)

var errFakeRead = errors.New("fake read error")

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedReader returns queued numbers per field. An exhausted queue is a read error.
type scriptedReader struct {
	values map[string][]float64
	fail   map[string]int
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{values: map[string][]float64{}, fail: map[string]int{}}
}

func (r *scriptedReader) Script(name string, values ...float64) *scriptedReader {
	r.values[name] = append(r.values[name], values...)
	return r
}

// FailAfter makes the read of name fail once n values were consumed.
func (r *scriptedReader) FailAfter(name string, n int) *scriptedReader {
	r.fail[name] = n + 1
	return r
}

func (r *scriptedReader) Read(name string) (felicity_modbus.Value, error) {
	if n, ok := r.fail[name]; ok {
		n--
		r.fail[name] = n
		if n == 0 {
			return felicity_modbus.Value{}, &felicity_modbus.ReadError{Name: name, Attempts: 3, Err: errFakeRead}
		}
	}
	queue := r.values[name]
	if len(queue) == 0 {
		return felicity_modbus.Value{}, &felicity_modbus.ReadError{Name: name, Attempts: 3, Err: errFakeRead}
	}
	r.values[name] = queue[1:]
	return felicity_modbus.NumberValue(queue[0], 0), nil
}

type publishedMessage struct {
	Topic   string
	Payload string
}

type fakeBus struct {
	published    []publishedMessage
	publishErr   error
	pollErr      error
	reconnectErr error
	polls        int
	reconnects   int
}

func (b *fakeBus) Publish(topic string, payload string) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (b *fakeBus) Poll(timeout time.Duration) error {
	b.polls++
	return b.pollErr
}

func (b *fakeBus) Reconnect() error {
	b.reconnects++
	return b.reconnectErr
}

type staticSource struct {
	snapshot felicity_modbus.Snapshot
	reads    int
}

func (s *staticSource) ReadAll() felicity_modbus.Snapshot {
	s.reads++
	return s.snapshot
}

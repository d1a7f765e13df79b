package felicity_modbus

import (
	"errors"
	"sync"
)

var ErrTestTransport = errors.New("test transport: scripted failure")

// TestTransport is an in-memory Transport. Registers hold steady values,
// scripted reads are consumed first, in order, per address.
type TestTransport struct {
	mu        sync.Mutex
	registers map[uint16]uint16
	scripted  map[uint16][]testRead
	reads     map[uint16]int
	writes    []TestWrite
	writeErr  error
}

type testRead struct {
	value uint16
	err   error
}

type TestWrite struct {
	Address uint16
	Value   uint16
}

func NewTestTransport() *TestTransport {
	return &TestTransport{
		registers: make(map[uint16]uint16),
		scripted:  make(map[uint16][]testRead),
		reads:     make(map[uint16]int),
	}
}

// NewTestInverterTransport returns a transport populated with plausible values
// of an IVEM5048 running on battery.
func NewTestInverterTransport() *TestTransport {
	t := NewTestTransport()
	t.SetRegister(0xF801, 0x0408)
	t.SetRegister(0x1101, 3)
	t.SetRegister(0x1102, 0)
	t.SetRegister(0x1103, 0)
	t.SetRegister(0x1104, 0x0012)
	t.SetRegister(0x1108, 5230)
	t.SetRegister(0x1109, uint16(0xFFF6)) // -10 A
	t.SetRegister(0x110A, uint16(0xFE0C)) // -500 W
	t.SetRegister(0x1111, 2301)
	t.SetRegister(0x1117, 0)
	t.SetRegister(0x1119, 5000)
	t.SetRegister(0x111E, 480)
	t.SetRegister(0x111F, 510)
	t.SetRegister(0x1120, 9)
	t.SetRegister(0x1126, 0)
	t.SetRegister(0x112A, 0)
	t.SetRegister(0x1132, 80)
	return t
}

func (t *TestTransport) SetRegister(addr uint16, value uint16) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registers[addr] = value
	return t
}

func (t *TestTransport) ScriptRead(addr uint16, value uint16) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripted[addr] = append(t.scripted[addr], testRead{value: value})
	return t
}

func (t *TestTransport) ScriptReadError(addr uint16, err error) *TestTransport {
	if err == nil {
		err = ErrTestTransport
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripted[addr] = append(t.scripted[addr], testRead{err: err})
	return t
}

func (t *TestTransport) FailWrites(err error) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
	return t
}

func (t *TestTransport) Reads(addr uint16) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads[addr]
}

func (t *TestTransport) Writes() []TestWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TestWrite, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *TestTransport) Open() error {
	return nil
}

func (t *TestTransport) Close() error {
	return nil
}

func (t *TestTransport) ReadRegister(addr uint16) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads[addr]++
	if q := t.scripted[addr]; len(q) > 0 {
		next := q[0]
		t.scripted[addr] = q[1:]
		return next.value, next.err
	}
	value, ok := t.registers[addr]
	if !ok {
		return 0, ErrTestTransport
	}
	return value, nil
}

func (t *TestTransport) WriteRegister(addr uint16, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, TestWrite{Address: addr, Value: value})
	if t.writeErr != nil {
		return t.writeErr
	}
	t.registers[addr] = value
	return nil
}

// ensure interface compliance
var _ Transport = (*TestTransport)(nil)

package felicity_modbus

import (
	"time"

	"go.uber.org/zap"
)

// Snapshot is a best-effort read of every known field. Fields that could not
// be read are absent; absence means unknown, not zero.
type Snapshot struct {
	At     time.Time
	Values map[string]Value
}

func NewSnapshot(at time.Time) Snapshot {
	return Snapshot{At: at, Values: make(map[string]Value)}
}

func (s Snapshot) Get(name string) (Value, bool) {
	v, ok := s.Values[name]
	return v, ok
}

func (s Snapshot) Len() int {
	return len(s.Values)
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Values) == 0
}

// Names returns the present field names in catalog order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Values))
	for _, f := range registers {
		if _, ok := s.Values[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

type FieldReader interface {
	Read(name string) (Value, error)
}

// SnapshotReader reads all catalog fields one round trip at a time. Fields are
// not read atomically, a snapshot only approximates a point in time.
type SnapshotReader struct {
	reader FieldReader
	logger *zap.Logger
	now    func() time.Time
}

func NewSnapshotReader(reader FieldReader, logger *zap.Logger) *SnapshotReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotReader{
		reader: reader,
		logger: logger,
		now:    time.Now,
	}
}

func (r *SnapshotReader) ReadAll() Snapshot {
	snapshot := NewSnapshot(r.now())
	for _, f := range registers {
		value, err := r.reader.Read(f.Name)
		if err != nil {
			r.logger.Error("snapshot@read failed to read register", zap.String("field", f.Name), zap.Error(err))
			continue
		}
		snapshot.Values[f.Name] = value
	}
	return snapshot
}

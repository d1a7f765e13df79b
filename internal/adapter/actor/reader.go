package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/core/port"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	// longest wait for a request to leave the bus queue
	QUEUE_TIMEOUT = READ_SNAPSHOT_TIMEOUT + SCAN_TIMEOUT
	// slack for the response to come back once the task timed out
	RESPONSE_GRACE      = time.Second
	LAST_VALUES_TIMEOUT = 2 * time.Second
)

var ErrRequestTimeout = errors.New("modbus actor request timed out")

// ActorFieldReader serves the reader ports by asking an actor that owns the
// register client. Callers on different goroutines share the bus safely.
//
// A request waits up to the queue timeout for the bus. Once the actor reports
// the task started, the deadline becomes the task timeout plus a grace.
type ActorFieldReader struct {
	root         *actor.RootContext
	pid          *actor.PID
	queueTimeout time.Duration
	logger       *zap.Logger
}

func NewActorFieldReader(root *actor.RootContext, pid *actor.PID, logger *zap.Logger) *ActorFieldReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActorFieldReader{
		root:         root,
		pid:          pid,
		queueTimeout: QUEUE_TIMEOUT,
		logger:       logger.With(zap.String("component", "actor_reader")),
	}
}

func (r *ActorFieldReader) WithQueueTimeout(timeout time.Duration) *ActorFieldReader {
	r.queueTimeout = timeout
	return r
}

func (r *ActorFieldReader) Read(name string) (felicity_modbus.Value, error) {
	resp, err := request[domain.ReadFieldResponse](r, domain.ReadFieldRequest{Name: name}, r.queueTimeout)
	if err != nil {
		return felicity_modbus.Value{}, err
	}
	return resp.Value, nil
}

// ReadAll never fails, an unreachable actor yields an empty snapshot.
func (r *ActorFieldReader) ReadAll() felicity_modbus.Snapshot {
	resp, err := request[domain.ReadSnapshotResponse](r, domain.ReadSnapshotRequest{}, r.queueTimeout)
	if err != nil {
		r.logger.Error("actor_reader@readAll error", zap.Error(err))
		return felicity_modbus.NewSnapshot(time.Now())
	}
	return resp.Snapshot
}

func (r *ActorFieldReader) Write(address uint16, value uint16) error {
	_, err := request[domain.WriteRegisterResponse](r, domain.WriteRegisterRequest{Address: address, Value: value}, r.queueTimeout)
	return err
}

func (r *ActorFieldReader) Scan(from, to uint16) ([]felicity_modbus.ScanResult, error) {
	resp, err := request[domain.ScanRegistersResponse](r, domain.ScanRegistersRequest{From: from, To: to}, r.queueTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (r *ActorFieldReader) LastValues() (map[string]felicity_modbus.Value, error) {
	resp, err := request[domain.GetLastValuesResponse](r, domain.GetLastValuesRequest{}, LAST_VALUES_TIMEOUT)
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// request sends msg on behalf of a short lived actor that relays the task
// progress and the response back to this goroutine.
func request[T domain.ActorResponse](r *ActorFieldReader, msg any, timeout time.Duration) (T, error) {
	var zero T
	replies := make(chan any, 2)
	relay := r.root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch m := ctx.Message().(type) {
		case domain.BusTaskStarted, T:
			select {
			case replies <- m:
			default:
			}
		}
	}))
	defer r.root.Stop(relay)

	r.root.RequestWithCustomSender(r.pid, msg, relay)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case m := <-replies:
			switch m := m.(type) {
			case domain.BusTaskStarted:
				deadline.Reset(m.Timeout + RESPONSE_GRACE)
			case T:
				if m.HasResponseError() {
					return m, m.GetResponseError()
				}
				return m, nil
			}
		case <-deadline.C:
			return zero, fmt.Errorf("%w: %T", ErrRequestTimeout, msg)
		}
	}
}

// ensure interface compliance
var _ port.FieldReader = (*ActorFieldReader)(nil)
var _ port.SnapshotSource = (*ActorFieldReader)(nil)

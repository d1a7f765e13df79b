package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/util/actorutil"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	MODBUS_ACTOR_ID = domain.ACTOR_ID_MODBUS

	// worst case of one field is 3 attempts of 4s plus backoff
	READ_FIELD_TIMEOUT    = 30 * time.Second
	READ_SNAPSHOT_TIMEOUT = 5 * time.Minute
	WRITE_TIMEOUT         = 10 * time.Second
	SCAN_TIMEOUT          = 15 * time.Minute
)

// TaskTimeouts bound each kind of bus task once it starts running.
type TaskTimeouts struct {
	ReadField time.Duration
	Snapshot  time.Duration
	Write     time.Duration
	Scan      time.Duration
}

func DefaultTaskTimeouts() TaskTimeouts {
	return TaskTimeouts{
		ReadField: READ_FIELD_TIMEOUT,
		Snapshot:  READ_SNAPSHOT_TIMEOUT,
		Write:     WRITE_TIMEOUT,
		Scan:      SCAN_TIMEOUT,
	}
}

// ModbusActor owns the register client. Every bus access goes through its
// mailbox, requests arriving while one is in flight are stashed.
type ModbusActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	client     *felicity_modbus.RegisterClient
	snapshots  *felicity_modbus.SnapshotReader
	onSnapshot func(felicity_modbus.Snapshot)
	timeouts   TaskTimeouts
	inFlight   *inFlightTask
	logger     *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

type inFlightTask struct {
	request any
	replyTo *actor.PID
}

func NewModbusActor(client *felicity_modbus.RegisterClient, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		client:    client,
		snapshots: felicity_modbus.NewSnapshotReader(client, logger),
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		timeouts:  DefaultTaskTimeouts(),
		logger:    actorutil.ActorLogger(MODBUS_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// WithSnapshotObserver is called with every snapshot the actor reads.
func (state *ModbusActor) WithSnapshotObserver(fn func(felicity_modbus.Snapshot)) *ModbusActor {
	state.onSnapshot = fn
	return state
}

func (state *ModbusActor) WithTaskTimeouts(timeouts TaskTimeouts) *ModbusActor {
	state.timeouts = timeouts
	return state
}

func (state *ModbusActor) Receive(context actor.Context) {
	switch context.Message().(type) {
	case *actor.Stopping:
		// the running task dies with the actor
		state.failPending(context, true)
	case *actor.Restarting:
		// a restart builds a fresh instance, its own task result is forwarded
		state.failPending(context, false)
	}
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		err := state.client.Open()
		if err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.client.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetLastValuesRequest:
		state.logger.Debug("modbus@default: GetLastValuesRequest")
		actorutil.ForRequest(msg).Respond(ctx, domain.GetLastValuesResponse{
			Values: state.client.LastValues(),
		})
	case domain.ReadFieldRequest:
		state.logger.Debug("modbus@default: ReadFieldRequest", zap.String("field", msg.Name))
		runTask(state, ctx, msg, func() (*domain.ReadFieldResponse, error) {
			value, err := state.client.Read(msg.Name)
			if err != nil {
				return nil, err
			}
			return &domain.ReadFieldResponse{Name: msg.Name, Value: value}, nil
		}, state.timeouts.ReadField)
	case domain.ReadSnapshotRequest:
		state.logger.Debug("modbus@default: ReadSnapshotRequest")
		runTask(state, ctx, msg, state.readSnapshot, state.timeouts.Snapshot)
	case domain.WriteRegisterRequest:
		state.logger.Debug("modbus@default: WriteRegisterRequest", zap.Uint16("address", msg.Address), zap.Uint16("value", msg.Value))
		runTask(state, ctx, msg, func() (*domain.WriteRegisterResponse, error) {
			if err := state.client.Write(msg.Address, msg.Value); err != nil {
				return nil, err
			}
			return &domain.WriteRegisterResponse{}, nil
		}, state.timeouts.Write)
	case domain.ScanRegistersRequest:
		state.logger.Debug("modbus@default: ScanRegistersRequest", zap.Uint16("from", msg.From), zap.Uint16("to", msg.To))
		runTask(state, ctx, msg, func() (*domain.ScanRegistersResponse, error) {
			results, err := state.client.Scan(msg.From, msg.To)
			if err != nil {
				return nil, err
			}
			return &domain.ScanRegistersResponse{Results: results}, nil
		}, state.timeouts.Scan)
	case backgroundTaskResult:
		// result of a task started by the instance before a restart
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.inFlight = nil
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.GetLastValuesRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetLastValuesResponse{
			Values: state.client.LastValues(),
		})
	case domain.ActorHealthRequest:
		// a long scan must not fail health checks
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "busy",
		})
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) readSnapshot() (*domain.ReadSnapshotResponse, error) {
	snapshot := state.snapshots.ReadAll()
	if state.onSnapshot != nil {
		state.onSnapshot(snapshot)
	}
	return &domain.ReadSnapshotResponse{Snapshot: snapshot}, nil
}

// failPending answers every stashed bus request, and the running one when
// inFlight is set, with ErrBusActorStopped.
func (state *ModbusActor) failPending(ctx actor.Context, inFlight bool) {
	state.stash.Drain(func(msg any, sender *actor.PID) {
		state.replyError(ctx, msg, sender, domain.ErrBusActorStopped)
	})
	if inFlight && state.inFlight != nil {
		state.replyError(ctx, state.inFlight.request, state.inFlight.replyTo, domain.ErrBusActorStopped)
		state.inFlight = nil
	}
}

func (state *ModbusActor) replyError(ctx actor.Context, msg any, sender *actor.PID, err error) {
	if req, ok := msg.(domain.ActorRequest); ok && req.ReplyTo() != nil {
		sender = (*actor.PID)(req.ReplyTo())
	}
	resp := errorResponse(msg, err)
	if resp == nil || sender == nil {
		return
	}
	state.logger.Debug("modbus@stopping fail request", zap.String("type", fmt.Sprintf("%T", msg)))
	ctx.Send(sender, resp)
}

// errorResponse maps a bus request to its failed response, nil for anything
// that is not a bus request.
func errorResponse(msg any, err error) domain.ActorResponse {
	mixIn := domain.FailedWith(err)
	switch msg := msg.(type) {
	case domain.ReadFieldRequest:
		return domain.ReadFieldResponse{ActorResponseMixIn: mixIn, Name: msg.Name}
	case domain.ReadSnapshotRequest:
		return domain.ReadSnapshotResponse{ActorResponseMixIn: mixIn, Snapshot: felicity_modbus.NewSnapshot(time.Now())}
	case domain.GetLastValuesRequest:
		return domain.GetLastValuesResponse{ActorResponseMixIn: mixIn}
	case domain.WriteRegisterRequest:
		return domain.WriteRegisterResponse{ActorResponseMixIn: mixIn}
	case domain.ScanRegistersRequest:
		return domain.ScanRegistersResponse{ActorResponseMixIn: mixIn}
	}
	return nil
}

// runTask runs fn off the mailbox, bounded by timeout, and sends the mapped
// result back to self. The actor waits in WaitingModbus until it arrives.
// The requester is told the task started so its own deadline covers the
// task only, not the time spent in the stash.
func runTask[T any](state *ModbusActor, ctx actor.Context, req domain.ActorRequest, fn func() (*T, error),
	timeout time.Duration) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	sender := actorutil.ForRequest(req).ReplyTo(ctx)
	task := actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, fn),
		mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		state.logger.Error("modbus@default task error", zap.String("type", fmt.Sprintf("%T", *new(T))), zap.Error(err))
		return backgroundTaskResult{
			message: errorResponse(req, err),
			replyTo: sender,
		}
	}).WithTimeout(timeout).OnSuccess(func(result backgroundTaskResult) {
		root.Send(self, result)
	})
	if sender != nil {
		ctx.Send(sender, domain.BusTaskStarted{Timeout: timeout})
	}
	state.inFlight = &inFlightTask{request: req, replyTo: sender}
	state.behavior.BecomeStacked(state.WaitingModbus)
	go task.Run()
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}

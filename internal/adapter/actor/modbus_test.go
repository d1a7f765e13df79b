package actor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/util/actorutil"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegisterClient(tr felicity_modbus.Transport) *felicity_modbus.RegisterClient {
	policy := felicity_modbus.DefaultRetryPolicy()
	policy.Sleep = func(time.Duration) {}
	return felicity_modbus.NewRegisterClient(tr, policy, zap.NewNop())
}

func spawnModbusActor(t *testing.T, tr felicity_modbus.Transport) (*actor.ActorSystem, *actor.PID, *ActorFieldReader) {
	t.Helper()
	return spawnModbusActorWithTimeouts(t, tr, DefaultTaskTimeouts())
}

func spawnModbusActorWithTimeouts(t *testing.T, tr felicity_modbus.Transport, timeouts TaskTimeouts) (*actor.ActorSystem, *actor.PID, *ActorFieldReader) {
	t.Helper()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	client := testRegisterClient(tr)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewModbusActor(client, logger).WithTaskTimeouts(timeouts)
	})
	pid := as.Root.Spawn(props)
	return as, pid, NewActorFieldReader(as.Root, pid, logger)
}

func TestReadFieldModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid, reader := spawnModbusActor(t, felicity_modbus.NewTestInverterTransport())

	value, err := reader.Read(felicity_modbus.FIELD_BATTERY_VOLTAGE)
	assert.NoError(err)
	assert.Equal("52.30", value.String())

	_, err = reader.Read("not_a_field")
	assert.ErrorIs(err, felicity_modbus.ErrFieldNotFound)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestReadSnapshotModbusActorMatchesDirectRead(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as, pid, reader := spawnModbusActor(t, felicity_modbus.NewTestInverterTransport())

	actorSnapshot := reader.ReadAll()
	direct := felicity_modbus.NewSnapshotReader(testRegisterClient(felicity_modbus.NewTestInverterTransport()), nil).ReadAll()

	require.Equal(direct.Len(), actorSnapshot.Len())
	assert.Equal(direct.Values, actorSnapshot.Values)

	last, err := reader.LastValues()
	assert.NoError(err)
	assert.Equal(direct.Values, last)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestSnapshotObserverModbusActor(t *testing.T) {

	var mu sync.Mutex
	var observed []felicity_modbus.Snapshot

	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	client := testRegisterClient(felicity_modbus.NewTestInverterTransport())
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewModbusActor(client, logger).WithSnapshotObserver(func(s felicity_modbus.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			observed = append(observed, s)
		})
	})
	pid := as.Root.Spawn(props)

	NewActorFieldReader(as.Root, pid, logger).ReadAll()

	mu.Lock()
	assert.Len(t, observed, 1)
	mu.Unlock()

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestWriteAndScanModbusActor(t *testing.T) {

	assert := assert.New(t)

	tr := felicity_modbus.NewTestInverterTransport()
	as, pid, reader := spawnModbusActor(t, tr)

	assert.NoError(reader.Write(0x2131, 1))
	assert.Equal([]felicity_modbus.TestWrite{{Address: 0x2131, Value: 1}}, tr.Writes())

	results, err := reader.Scan(0x1100, 0x1103)
	assert.NoError(err)
	assert.Len(results, 4)
	assert.Error(results[0].Err, "0x1100 is not populated")
	assert.Equal(uint16(3), results[1].Value)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestWriteErrorModbusActor(t *testing.T) {

	tr := felicity_modbus.NewTestInverterTransport().FailWrites(felicity_modbus.ErrTestTransport)
	as, pid, reader := spawnModbusActor(t, tr)

	err := reader.Write(0x2131, 1)
	assert.ErrorIs(t, err, felicity_modbus.ErrWrite)

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestConcurrentRequestsAreSerialized(t *testing.T) {

	assert := assert.New(t)

	tr := felicity_modbus.NewTestInverterTransport()
	as, pid, reader := spawnModbusActor(t, tr)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reader.Read(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(err)
	}
	assert.Equal(20, tr.Reads(0x1132))

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	assert.NoError(err)
	assert.True(res.(domain.ActorHealthResponse).Healthy)

	as.Root.Stop(pid)
	as.Shutdown()
}

// slowTransport delays every register read, like a 2400 baud line does.
type slowTransport struct {
	*felicity_modbus.TestTransport
	delay time.Duration
	reads atomic.Int32
}

func (t *slowTransport) ReadRegister(addr uint16) (uint16, error) {
	t.reads.Add(1)
	time.Sleep(t.delay)
	return t.TestTransport.ReadRegister(addr)
}

func slowTimeouts() TaskTimeouts {
	return TaskTimeouts{
		ReadField: 400 * time.Millisecond,
		Snapshot:  30 * time.Second,
		Write:     400 * time.Millisecond,
		Scan:      30 * time.Second,
	}
}

func TestQueuedReadWaitsBehindSlowSnapshot(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	tr := &slowTransport{TestTransport: felicity_modbus.NewTestInverterTransport(), delay: 150 * time.Millisecond}
	as, pid, reader := spawnModbusActorWithTimeouts(t, tr, slowTimeouts())
	defer as.Shutdown()
	defer as.Root.Stop(pid)

	snapshotDone := make(chan felicity_modbus.Snapshot, 1)
	go func() {
		snapshotDone <- reader.ReadAll()
	}()
	require.Eventually(func() bool { return tr.reads.Load() > 0 }, time.Second, 5*time.Millisecond)

	// the snapshot holds the bus far longer than a single read may take
	start := time.Now()
	value, err := reader.Read(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
	elapsed := time.Since(start)

	require.NoError(err)
	assert.Equal("80", value.String())
	assert.Greater(elapsed, slowTimeouts().ReadField+RESPONSE_GRACE)

	select {
	case snapshot := <-snapshotDone:
		assert.False(snapshot.IsEmpty())
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot did not complete")
	}
}

func TestQueuedWriteRunsAfterSlowSnapshot(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	tr := &slowTransport{TestTransport: felicity_modbus.NewTestInverterTransport(), delay: 150 * time.Millisecond}
	as, pid, reader := spawnModbusActorWithTimeouts(t, tr, slowTimeouts())
	defer as.Shutdown()
	defer as.Root.Stop(pid)

	go reader.ReadAll()
	require.Eventually(func() bool { return tr.reads.Load() > 0 }, time.Second, 5*time.Millisecond)

	assert.NoError(reader.Write(0x2131, 1))
	assert.Equal([]felicity_modbus.TestWrite{{Address: 0x2131, Value: 1}}, tr.Writes())
}

func TestStoppingFailsQueuedRequests(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	tr := &slowTransport{TestTransport: felicity_modbus.NewTestInverterTransport(), delay: 150 * time.Millisecond}
	as, pid, reader := spawnModbusActorWithTimeouts(t, tr, slowTimeouts())
	defer as.Shutdown()
	reader.WithQueueTimeout(5 * time.Second)

	snapshotDone := make(chan felicity_modbus.Snapshot, 1)
	go func() {
		snapshotDone <- reader.ReadAll()
	}()
	require.Eventually(func() bool { return tr.reads.Load() > 0 }, time.Second, 5*time.Millisecond)

	readErr := make(chan error, 1)
	go func() {
		_, err := reader.Read(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
		readErr <- err
	}()
	// let the read reach the stash
	time.Sleep(100 * time.Millisecond)

	as.Root.Stop(pid)

	select {
	case err := <-readErr:
		assert.ErrorIs(err, domain.ErrBusActorStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("queued read was not failed on stop")
	}
	select {
	case snapshot := <-snapshotDone:
		assert.True(snapshot.IsEmpty())
	case <-time.After(2 * time.Second):
		t.Fatal("running snapshot was not failed on stop")
	}
}

func TestLastValuesAnsweredWhileBusy(t *testing.T) {

	require := require.New(t)

	tr := &slowTransport{TestTransport: felicity_modbus.NewTestInverterTransport(), delay: 150 * time.Millisecond}
	as, pid, reader := spawnModbusActorWithTimeouts(t, tr, slowTimeouts())
	defer as.Shutdown()
	defer as.Root.Stop(pid)

	go reader.ReadAll()
	require.Eventually(func() bool { return tr.reads.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.Eventually(func() bool {
		values, err := reader.LastValues()
		return err == nil && len(values) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestErrorResponseCoversBusRequests(t *testing.T) {

	assert := assert.New(t)

	for _, req := range []any{
		domain.ReadFieldRequest{Name: felicity_modbus.FIELD_WORK_MODE},
		domain.ReadSnapshotRequest{},
		domain.GetLastValuesRequest{},
		domain.WriteRegisterRequest{Address: 0x2131, Value: 1},
		domain.ScanRegistersRequest{From: 0x1100, To: 0x1101},
	} {
		resp := errorResponse(req, domain.ErrBusActorStopped)
		if assert.NotNil(resp, "%T", req) {
			assert.ErrorIs(resp.GetResponseError(), domain.ErrBusActorStopped)
		}
	}
	assert.Nil(errorResponse(domain.ActorHealthRequest{}, domain.ErrBusActorStopped))
	assert.Equal(felicity_modbus.FIELD_WORK_MODE,
		errorResponse(domain.ReadFieldRequest{Name: felicity_modbus.FIELD_WORK_MODE}, domain.ErrBusActorStopped).(domain.ReadFieldResponse).Name)
}

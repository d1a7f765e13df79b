package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/felicity2mqtt/internal/adapter/actor"
	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/util"
	"github.com/berfenger/felicity2mqtt/internal/util/actorutil"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnMaster(t *testing.T) (*actor.ActorSystem, *actor.PID) {
	t.Helper()

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			policy := felicity_modbus.DefaultRetryPolicy()
			policy.Sleep = func(time.Duration) {}
			client := felicity_modbus.NewRegisterClient(felicity_modbus.NewTestInverterTransport(), policy, logger)
			return adactor.NewModbusActor(client, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	time.Sleep(1 * time.Second)

	return as, pid
}

func TestMasterActor(t *testing.T) {

	as, pid := spawnMaster(t)

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)
	assert.True(t, healthResp.Healthy, "healthy is true")

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestMasterActorForwardsToModbus(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnMaster(t)
	reader := adactor.NewActorFieldReader(as.Root, pid, nil)

	value, err := reader.Read(felicity_modbus.FIELD_WORK_MODE)
	assert.NoError(err)
	assert.Equal("BatteryMode", value.String())

	snapshot := reader.ReadAll()
	assert.Equal(len(felicity_modbus.Fields()), snapshot.Len())

	assert.NoError(reader.Write(0x2135, 0))

	as.Root.Stop(pid)
	as.Shutdown()
}

func TestMasterActorHealthCheckInterleavedWithBusRequests(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnMaster(t)
	reader := adactor.NewActorFieldReader(as.Root, pid, nil)

	var wg sync.WaitGroup
	readErrs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reader.Read(felicity_modbus.FIELD_BATTERY_VOLTAGE)
			readErrs <- err
		}()
	}

	// every check gets its own answer, none leaks into the next
	for i := 0; i < 3; i++ {
		res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
		require.NoError(t, err)
		healthResp := res.(domain.ActorHealthResponse)
		assert.Equal(domain.ACTOR_ID_MASTER, healthResp.Id)
		assert.True(healthResp.Healthy)
		assert.Contains([]string{"idle", "busy"}, healthResp.State)
	}

	wg.Wait()
	close(readErrs)
	for err := range readErrs {
		assert.NoError(err)
	}

	as.Root.Stop(pid)
	as.Shutdown()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	adactor "github.com/berfenger/felicity2mqtt/internal/adapter/actor"
	"github.com/berfenger/felicity2mqtt/internal/config"
	"github.com/berfenger/felicity2mqtt/internal/core/actor"
	"github.com/berfenger/felicity2mqtt/internal/core/port"
	"github.com/berfenger/felicity2mqtt/internal/core/service"
	"github.com/berfenger/felicity2mqtt/internal/metrics"
	"github.com/berfenger/felicity2mqtt/internal/mqtt"
	"github.com/berfenger/felicity2mqtt/internal/server"
	"github.com/berfenger/felicity2mqtt/internal/util/actorutil"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// App holds every long lived component. It is built once in main and passed
// down explicitly.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	actorSystem *pactor.ActorSystem
	master      *pactor.PID
	reader      *adactor.ActorFieldReader

	shutdownOnce sync.Once
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {

	m := metrics.NewMetrics()

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, logger)
	})
	pid, err := as.Root.SpawnNamed(props, "master")
	if err != nil {
		as.Shutdown()
		return nil, err
	}

	return &App{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		actorSystem: as,
		master:      pid,
		reader:      adactor.NewActorFieldReader(as.Root, pid, logger),
	}, nil
}

func modbusActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	serialCfg := felicity_modbus.DefaultSerialConfig()
	serialCfg.Port = cfg.Serial.Port
	serialCfg.BaudRate = cfg.Serial.BaudRate
	serialCfg.UnitId = uint8(cfg.Serial.UnitId)
	serialCfg.Timeout = cfg.Serial.Timeout()

	transport, err := felicity_modbus.CreateSerialTransport(serialCfg, logger, m.ModbusInstrument())
	if err != nil {
		return nil, err
	}

	retry := felicity_modbus.DefaultRetryPolicy()
	retry.MaxAttempts = int(cfg.Retry.Attempts)
	retry.Backoff = cfg.Retry.Backoff()

	client := felicity_modbus.NewRegisterClient(transport, retry, logger).WithObserver(m)

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(client, logger).WithSnapshotObserver(m.ObserveSnapshot)
	}, nil
}

const (
	STEP_PRINT_ALL = "print-all"
	STEP_SCAN      = "scan-unknown"
	STEP_WRITE     = "write"
)

// runPlan is what one invocation does: the one-shot steps in order, then the
// estimation and the long running services.
type runPlan struct {
	steps    []string
	estimate bool
	mqtt     bool
	http     bool
}

func planRun(flags *cliFlags, cfg *config.Config) runPlan {
	plan := runPlan{
		estimate: flags.estimate,
		mqtt:     cfg.MQTT.Enable,
		http:     cfg.Port > 0,
	}
	// one-shot steps finish before the estimation and the services start
	if flags.printAll {
		plan.steps = append(plan.steps, STEP_PRINT_ALL)
	}
	if flags.scanUnknown {
		plan.steps = append(plan.steps, STEP_SCAN)
	}
	if flags.write != "" {
		plan.steps = append(plan.steps, STEP_WRITE)
	}
	return plan
}

func (p runPlan) empty() bool {
	return len(p.steps) == 0 && !p.estimate && !p.services()
}

func (p runPlan) services() bool {
	return p.mqtt || p.http
}

// Run executes every selected one-shot mode in order, then the estimation and
// the long running services. A failing step stops the run.
func (app *App) Run(ctx context.Context, flags *cliFlags) error {
	plan := planRun(flags, app.cfg)
	if plan.empty() {
		return errors.New("nothing to do. use --print-all, --scan-unknown, --write, --estimate, --mqtt-server or set port")
	}

	for _, step := range plan.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := app.runStep(step, flags); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}

	if !plan.estimate && !plan.services() {
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// a failing service stops the others
	spawn := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil {
				cancel()
			}
			errs <- err
		}()
	}

	if plan.http {
		httpServer := server.NewServer(*app.cfg, app.actorSystem.Root, app.master, app.reader, app.metrics.Handler())
		spawn(func(ctx context.Context) error {
			return app.serveHTTP(ctx, httpServer)
		})
	}

	if plan.mqtt {
		spawn(app.runPublisher)
	}

	if plan.estimate {
		spawn(func(ctx context.Context) error {
			err := app.estimate(ctx)
			// the estimation alone ends the process, services keep it alive
			if !plan.services() {
				cancel()
			}
			return err
		})
	}

	<-ctx.Done()
	app.logger.Info("main@shutdown shutting down gracefully, press Ctrl+C again to force")
	wg.Wait()
	close(errs)

	var result error
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			result = errors.Join(result, err)
		}
	}
	return result
}

func (app *App) runStep(step string, flags *cliFlags) error {
	switch step {
	case STEP_PRINT_ALL:
		return app.printAll()
	case STEP_SCAN:
		return app.scan(flags.scanFrom, flags.scanTo)
	case STEP_WRITE:
		return app.write(flags.write)
	}
	return fmt.Errorf("unknown step %q", step)
}

func (app *App) printAll() error {
	snapshot := app.reader.ReadAll()
	if snapshot.IsEmpty() {
		return errors.New("no field could be read")
	}
	for _, name := range snapshot.Names() {
		value, _ := snapshot.Get(name)
		fmt.Printf("%s: %s\n", name, value.String())
	}
	return nil
}

func (app *App) scan(from, to uint16) error {
	results, err := app.reader.Scan(from, to)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Println(res.String())
	}
	return nil
}

func (app *App) write(arg string) error {
	name, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("invalid --write %q, expected name=value", arg)
	}
	address, err := felicity_modbus.WritableAddressOf(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", name, err)
	}
	if err := app.reader.Write(address, uint16(value)); err != nil {
		return err
	}
	fmt.Printf("%s (0x%04X) = %d\n", name, address, value)
	return nil
}

func (app *App) estimate(ctx context.Context) error {
	estimatorCfg := service.RuntimeEstimatorConfig{
		PollInterval:   app.cfg.Estimator.PollInterval(),
		SampleInterval: app.cfg.Estimator.SampleInterval(),
		ReserveFloor:   app.cfg.Estimator.ReserveFloor,
	}
	estimator := service.NewRuntimeEstimator(estimatorCfg, app.reader, port.SystemClock{}, app.logger)
	result, err := estimator.Run(ctx)
	if err != nil {
		app.logger.Error("estimator@run aborted", zap.Error(err))
		return err
	}
	fmt.Println(result.String())
	return nil
}

func (app *App) runPublisher(ctx context.Context) error {
	bus := mqtt.NewBus(app.cfg, app.logger)
	bus.OnCommand(app.handleCommand)
	if app.cfg.MQTT.HADiscoveryEnable {
		bus.SetDiscoverySensors(service.DiscoverySensors(app.reader, app.cfg.MQTT.BaseTopic, app.logger))
	}
	defer bus.Close()

	// a failed first connect is retried by the publisher cycle
	if err := bus.Connect(); err != nil {
		app.logger.Error("mqtt@connect initial connection failed", zap.Error(err))
	}

	publisherCfg := service.TelemetryPublisherConfig{
		Prefix:           app.cfg.MQTT.BaseTopic,
		Interval:         app.cfg.Publisher.Interval(),
		PollTimeout:      app.cfg.Publisher.PollTimeout(),
		ReconnectBackoff: app.cfg.Publisher.Backoff(),
	}
	publisher := service.NewTelemetryPublisher(publisherCfg, app.reader, bus, port.SystemClock{}, app.logger).
		WithObserver(app.metrics)
	return publisher.Run(ctx)
}

func (app *App) handleCommand(cmd mqtt.ParsedMQTTCommand) {
	req, err := actorutil.ParsedMQTTCommandToRequest(cmd)
	if err != nil {
		app.logger.Warn("mqtt@command rejected", zap.String("setting", cmd.DeviceId), zap.Error(err))
		return
	}
	if err := app.reader.Write(req.Address, req.Value); err != nil {
		app.logger.Error("mqtt@command write failed", zap.String("setting", cmd.DeviceId), zap.Error(err))
		return
	}
	app.logger.Info("mqtt@command applied", zap.String("setting", cmd.DeviceId), zap.Uint16("value", req.Value))
}

func (app *App) serveHTTP(ctx context.Context, httpServer *http.Server) error {
	go func() {
		<-ctx.Done()
		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("http@shutdown server forced to shutdown", zap.Error(err))
		}
	}()

	app.logger.Info("http@start listening", zap.String("addr", httpServer.Addr))
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

func (app *App) Shutdown() {
	app.shutdownOnce.Do(func() {
		app.actorSystem.Root.Stop(app.master)
		app.actorSystem.Shutdown()
	})
}

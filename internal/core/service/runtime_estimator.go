package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/core/port"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"go.uber.org/zap"
)

type EstimatorPhase int

const (
	PHASE_WAITING_FOR_DROP EstimatorPhase = iota
	PHASE_SAMPLING
	PHASE_COMPUTED
)

func (p EstimatorPhase) String() string {
	switch p {
	case PHASE_WAITING_FOR_DROP:
		return "waitingForDrop"
	case PHASE_SAMPLING:
		return "sampling"
	case PHASE_COMPUTED:
		return "computed"
	default:
		return "unknown"
	}
}

type RuntimeEstimatorConfig struct {
	PollInterval   time.Duration
	SampleInterval time.Duration
	ReserveFloor   float64
}

func DefaultRuntimeEstimatorConfig() RuntimeEstimatorConfig {
	return RuntimeEstimatorConfig{
		PollInterval:   5 * time.Second,
		SampleInterval: 5 * time.Second,
		ReserveFloor:   20,
	}
}

// RuntimeEstimator waits for the battery percentage to tick down, then samples
// battery power until it ticks down once more. The duration of that single
// percentage unit is extrapolated linearly down to the reserve floor, so the
// result assumes a constant drain rate.
type RuntimeEstimator struct {
	cfg    RuntimeEstimatorConfig
	reader port.FieldReader
	clock  port.Clock
	logger *zap.Logger

	phase        EstimatorPhase
	previous     float64
	baseline     float64
	baselineTime time.Time
	samples      []float64
	result       *domain.RuntimeEstimate
}

func NewRuntimeEstimator(cfg RuntimeEstimatorConfig, reader port.FieldReader, clock port.Clock, logger *zap.Logger) *RuntimeEstimator {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuntimeEstimator{
		cfg:    cfg,
		reader: reader,
		clock:  clock,
		logger: logger.With(zap.String("component", "estimator")),
		phase:  PHASE_WAITING_FOR_DROP,
	}
}

func (e *RuntimeEstimator) Phase() EstimatorPhase {
	return e.phase
}

// Run blocks until one estimation completes, a read fails or ctx is done.
func (e *RuntimeEstimator) Run(ctx context.Context) (*domain.RuntimeEstimate, error) {
	if e.phase != PHASE_WAITING_FOR_DROP || e.result != nil {
		return nil, errors.New("estimator: already run")
	}

	current, err := e.readNumber(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
	if err != nil {
		return nil, err
	}
	e.previous = current
	e.logger.Info("estimator@waitingForDrop waiting for battery percentage to drop", zap.Float64("percentage", current))

	for e.phase != PHASE_COMPUTED {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var done bool
		switch e.phase {
		case PHASE_WAITING_FOR_DROP:
			done, err = e.waitingForDrop()
			if err == nil && !done {
				e.clock.Sleep(e.cfg.PollInterval)
			}
		case PHASE_SAMPLING:
			done, err = e.sampling()
			if err == nil && !done {
				e.clock.Sleep(e.cfg.SampleInterval)
			}
		}
		if err != nil {
			e.logger.Error(fmt.Sprintf("estimator@%s aborted", e.phase), zap.Error(err))
			return nil, err
		}
	}
	return e.result, nil
}

func (e *RuntimeEstimator) waitingForDrop() (bool, error) {
	pct, err := e.readNumber(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
	if err != nil {
		return false, err
	}
	if pct < e.previous {
		e.baseline = pct
		e.baselineTime = e.clock.Now()
		e.samples = nil
		e.phase = PHASE_SAMPLING
		e.logger.Info("estimator@sampling starting battery runtime estimation", zap.Float64("percentage", pct))
		return true, nil
	}
	e.previous = pct
	return false, nil
}

func (e *RuntimeEstimator) sampling() (bool, error) {
	power, err := e.readNumber(felicity_modbus.FIELD_BATTERY_POWER)
	if err != nil {
		return false, err
	}
	e.samples = append(e.samples, power)
	e.logger.Debug("estimator@sampling sample", zap.Float64("power", power), zap.Int("samples", len(e.samples)))

	pct, err := e.readNumber(felicity_modbus.FIELD_BATTERY_PERCENTAGE)
	if err != nil {
		return false, err
	}
	if pct < e.baseline {
		e.compute(pct, e.clock.Now())
		return true, nil
	}
	return false, nil
}

func (e *RuntimeEstimator) compute(final float64, exit time.Time) {
	elapsed := exit.Sub(e.baselineTime).Seconds()
	e.result = ComputeRuntimeEstimate(e.baseline, final, e.samples, elapsed, e.cfg.ReserveFloor)
	e.phase = PHASE_COMPUTED
	e.logger.Info("estimator@computed "+e.result.String(),
		zap.Float64("elapsed_seconds", e.result.ElapsedSeconds),
		zap.Float64("estimated_runtime_seconds", e.result.EstimatedRuntimeSeconds),
		zap.Float64("capacity_kwh", e.result.CapacityKWh))
}

// ComputeRuntimeEstimate derives the estimate from one observed percentage drop.
func ComputeRuntimeEstimate(baseline, final float64, samples []float64, elapsedSeconds, reserveFloor float64) *domain.RuntimeEstimate {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	var avg float64
	if len(samples) > 0 {
		avg = sum / float64(len(samples))
	}
	var capacity float64
	if elapsedSeconds > 0 {
		capacity = (avg * -1) * 100 / (3600 / elapsedSeconds) / 1000
	}
	return &domain.RuntimeEstimate{
		ElapsedSeconds:          elapsedSeconds,
		AveragePowerWatts:       avg,
		EstimatedRuntimeSeconds: (baseline - reserveFloor) * elapsedSeconds,
		CapacityKWh:             capacity,
		BaselinePercentage:      baseline,
		FinalPercentage:         final,
		Samples:                 len(samples),
	}
}

func (e *RuntimeEstimator) readNumber(name string) (float64, error) {
	v, err := e.reader.Read(name)
	if err != nil {
		return 0, fmt.Errorf("estimator: read %s: %w", name, err)
	}
	f, ok := v.Float64()
	if !ok {
		return 0, fmt.Errorf("estimator: %s is not numeric: %q", name, v.String())
	}
	return f, nil
}

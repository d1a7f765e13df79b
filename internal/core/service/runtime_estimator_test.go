package service

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func estimatorTestConfig() RuntimeEstimatorConfig {
	return RuntimeEstimatorConfig{
		PollInterval:   5 * time.Second,
		SampleInterval: 600 * time.Second,
		ReserveFloor:   20,
	}
}

func TestRuntimeEstimatorSinglePercentDrop(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	reader := newScriptedReader().
		// initial, no drop, drop to baseline, sampling, final drop
		Script(felicity_modbus.FIELD_BATTERY_PERCENTAGE, 80, 80, 79, 79, 78).
		Script(felicity_modbus.FIELD_BATTERY_POWER, -500, -520)
	clock := newFakeClock()

	estimator := NewRuntimeEstimator(estimatorTestConfig(), reader, clock, nil)
	result, err := estimator.Run(context.Background())
	require.NoError(err)
	require.NotNil(result)

	assert.Equal(PHASE_COMPUTED, estimator.Phase())
	assert.Equal(600.0, result.ElapsedSeconds)
	assert.Equal(-510.0, result.AveragePowerWatts)
	assert.Equal(35400.0, result.EstimatedRuntimeSeconds)
	assert.InDelta(8.5, result.CapacityKWh, 1e-9)
	assert.Equal(79.0, result.BaselinePercentage)
	assert.Equal(78.0, result.FinalPercentage)
	assert.Equal(2, result.Samples)

	// waiting sleeps happen before the baseline and are not counted
	assert.Equal([]time.Duration{5 * time.Second, 600 * time.Second}, clock.Sleeps())
}

func TestRuntimeEstimatorAbortsOnInitialReadFailure(t *testing.T) {

	reader := newScriptedReader()
	_, err := NewRuntimeEstimator(estimatorTestConfig(), reader, newFakeClock(), nil).Run(context.Background())

	assert.ErrorIs(t, err, felicity_modbus.ErrRead)
}

func TestRuntimeEstimatorAbortsWhileWaiting(t *testing.T) {

	assert := assert.New(t)

	reader := newScriptedReader().
		Script(felicity_modbus.FIELD_BATTERY_PERCENTAGE, 80, 80)
	estimator := NewRuntimeEstimator(estimatorTestConfig(), reader, newFakeClock(), nil)
	result, err := estimator.Run(context.Background())

	assert.Nil(result)
	assert.ErrorIs(err, errFakeRead)
	assert.Equal(PHASE_WAITING_FOR_DROP, estimator.Phase())
}

func TestRuntimeEstimatorAbortsWhileSampling(t *testing.T) {

	assert := assert.New(t)

	reader := newScriptedReader().
		Script(felicity_modbus.FIELD_BATTERY_PERCENTAGE, 80, 79, 79, 79).
		Script(felicity_modbus.FIELD_BATTERY_POWER, -500, -500).
		FailAfter(felicity_modbus.FIELD_BATTERY_POWER, 1)
	estimator := NewRuntimeEstimator(estimatorTestConfig(), reader, newFakeClock(), nil)
	result, err := estimator.Run(context.Background())

	assert.Nil(result)
	assert.ErrorIs(err, felicity_modbus.ErrRead)
	assert.Equal(PHASE_SAMPLING, estimator.Phase())
}

func TestRuntimeEstimatorCancelled(t *testing.T) {

	reader := newScriptedReader().
		Script(felicity_modbus.FIELD_BATTERY_PERCENTAGE, 80, 80, 80)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRuntimeEstimator(estimatorTestConfig(), reader, newFakeClock(), nil).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeEstimatorRunsOnce(t *testing.T) {

	reader := newScriptedReader().
		Script(felicity_modbus.FIELD_BATTERY_PERCENTAGE, 80, 79, 78).
		Script(felicity_modbus.FIELD_BATTERY_POWER, -100)
	estimator := NewRuntimeEstimator(estimatorTestConfig(), reader, newFakeClock(), nil)

	_, err := estimator.Run(context.Background())
	require.NoError(t, err)
	_, err = estimator.Run(context.Background())
	assert.Error(t, err)
}

func TestComputeRuntimeEstimate(t *testing.T) {

	assert := assert.New(t)

	r := ComputeRuntimeEstimate(50, 49, []float64{-1000, -2000, -3000}, 360, 20)
	assert.Equal(-2000.0, r.AveragePowerWatts)
	assert.Equal(10800.0, r.EstimatedRuntimeSeconds)
	assert.InDelta(20.0, r.CapacityKWh, 1e-9)

	// a baseline below the floor gives a negative runtime
	r = ComputeRuntimeEstimate(15, 14, []float64{-100}, 60, 20)
	assert.Equal(-300.0, r.EstimatedRuntimeSeconds)

	r = ComputeRuntimeEstimate(50, 49, nil, 0, 20)
	assert.Equal(0.0, r.AveragePowerWatts)
	assert.Equal(0.0, r.CapacityKWh)
}

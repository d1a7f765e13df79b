package felicity_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAddresses(t *testing.T) {

	assert := assert.New(t)

	expected := map[string]uint16{
		"model":                    0xF801,
		"work_mode":                0x1101,
		"charging_state":           0x1102,
		"fault_code":               0x1103,
		"power_flow_msg":           0x1104,
		"battery_voltage":          0x1108,
		"battery_current":          0x1109,
		"battery_power":            0x110A,
		"ac_output_voltage":        0x1111,
		"ac_input_voltage":         0x1117,
		"ac_frequency":             0x1119,
		"ac_output_power":          0x111E,
		"ac_output_apparent_power": 0x111F,
		"load_percentage":          0x1120,
		"pv_input_voltage":         0x1126,
		"pv_input_power":           0x112A,
		"battery_percentage":       0x1132,
	}

	assert.Len(Fields(), len(expected))
	for name, addr := range expected {
		got, err := AddressOf(name)
		assert.NoError(err, name)
		assert.Equal(addr, got, name)
	}

	_, err := AddressOf("grid_power")
	assert.ErrorIs(err, ErrFieldNotFound)
}

func TestRegisterSignedness(t *testing.T) {

	signed := map[string]bool{
		FIELD_BATTERY_POWER:            true,
		FIELD_BATTERY_CURRENT:          true,
		FIELD_AC_OUTPUT_POWER:          true,
		FIELD_AC_OUTPUT_APPARENT_POWER: true,
	}
	for _, f := range Fields() {
		assert.Equal(t, signed[f.Name], f.Signed, f.Name)
	}
}

func TestWritableRegisters(t *testing.T) {

	assert := assert.New(t)

	addr, err := WritableAddressOf("buzzer_enabled")
	assert.NoError(err)
	assert.EqualValues(0x2131, addr)

	addr, err = WritableAddressOf("charging_source_priority")
	assert.NoError(err)
	assert.EqualValues(0x212C, addr)

	_, err = WritableAddressOf("battery_voltage")
	assert.ErrorIs(err, ErrFieldNotFound)
	assert.Len(WritableFields(), 11)
}

func TestNormalizeScaled(t *testing.T) {

	require := require.New(t)

	v, err := Normalize("battery_voltage", 5000)
	require.NoError(err)
	f, ok := v.Float64()
	require.True(ok)
	require.Equal(50.00, f)
	require.Equal("50.00", v.String())

	v, err = Normalize("ac_frequency", 5000)
	require.NoError(err)
	f, _ = v.Float64()
	require.Equal(50.00, f)

	v, err = Normalize("pv_input_voltage", 1200)
	require.NoError(err)
	f, _ = v.Float64()
	require.Equal(120.0, f)
	require.Equal("120.0", v.String())

	v, err = Normalize("ac_output_voltage", 2301)
	require.NoError(err)
	f, _ = v.Float64()
	require.Equal(230.1, f)

	v, err = Normalize("battery_voltage", 5230)
	require.NoError(err)
	require.Equal("52.30", v.String())
}

func TestNormalizePassThrough(t *testing.T) {

	v, err := Normalize("battery_power", -500)
	require.NoError(t, err)
	f, ok := v.Float64()
	require.True(t, ok)
	require.Equal(t, -500.0, f)
	require.Equal(t, "-500", v.String())
}

func TestNormalizeLabels(t *testing.T) {

	assert := assert.New(t)

	v, err := Normalize("work_mode", 3)
	assert.NoError(err)
	assert.True(v.IsLabel())
	assert.Equal("BatteryMode", v.String())

	v, _ = Normalize("work_mode", 99)
	assert.Equal("Unknown", v.String())

	v, _ = Normalize("charging_state", 2)
	assert.Equal("ConstantVoltage", v.String())

	v, _ = Normalize("charging_state", 4)
	assert.Equal("Unknown", v.String())

	v, _ = Normalize("model", 0x0408)
	assert.Equal("IVEM5048(5000VA/48V)", v.String())

	v, _ = Normalize("model", 0x0204)
	assert.Equal("IVEM3024(3000VA/24V)", v.String())

	v, _ = Normalize("model", 0x0101)
	assert.Equal("Unknown", v.String())
}

func TestNormalizeEnumVariants(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(WorkModeUnknown, ParseWorkMode(-1))
	assert.Equal(WorkModeUnknown, ParseWorkMode(7))
	assert.Equal(WorkModeLine, ParseWorkMode(5))
	assert.Equal("PVChargeMode", WorkModePVCharge.String())
	assert.Equal(ChargingStateUnknown, ParseChargingState(-3))
	assert.Equal(ModelUnknown, ParseModel(0))
}

func TestNormalizeUnknownField(t *testing.T) {

	_, err := Normalize("grid_power", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNormalization)
	assert.ErrorIs(t, err, ErrFieldNotFound)
	var nerr *NormalizationError
	assert.True(t, errors.As(err, &nerr))
}

func TestNormalizeIsDeterministic(t *testing.T) {

	for _, f := range Fields() {
		for _, raw := range []int{-32768, -1, 0, 1, 3, 1200, 5000, 65535} {
			a, errA := Normalize(f.Name, raw)
			b, errB := Normalize(f.Name, raw)
			assert.Equal(t, errA, errB)
			assert.Equal(t, a, b, "%s(%d)", f.Name, raw)
		}
	}
}

func TestRoundingHalfAwayFromZero(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(0.13, round2(0.125))
	assert.Equal(-0.13, round2(-0.125))
	assert.Equal(0.12, round2(0.1249))
	assert.Equal(50.0, round2(50))
}

func TestRawSignedInterpretation(t *testing.T) {

	signed, _ := FieldByName(FIELD_BATTERY_POWER)
	unsigned, _ := FieldByName(FIELD_PV_INPUT_POWER)

	assert.Equal(t, -500, rawToInt(signed, 0xFE0C))
	assert.Equal(t, 65036, rawToInt(unsigned, 0xFE0C))
}

func TestValueJSON(t *testing.T) {

	b, err := NumberValue(52.3, 2).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "52.30", string(b))

	b, err = LabelValue("LineMode").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"LineMode"`, string(b))
}

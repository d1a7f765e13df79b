package felicity_modbus

import (
	"fmt"
	"math"
	"strconv"
)

const UnknownStr = "Unknown"

// work modes
type WorkMode int

const (
	WorkModeUnknown   WorkMode = -1
	WorkModePowerOn   WorkMode = 0
	WorkModeStandby   WorkMode = 1
	WorkModeBypass    WorkMode = 2
	WorkModeBattery   WorkMode = 3
	WorkModeFault     WorkMode = 4
	WorkModeLine      WorkMode = 5
	WorkModePVCharge  WorkMode = 6
	workModeMaxDefine          = WorkModePVCharge
)

var workModeStr = [...]string{
	WorkModePowerOn:  "PowerOnMode",
	WorkModeStandby:  "StandbyMode",
	WorkModeBypass:   "BypassMode",
	WorkModeBattery:  "BatteryMode",
	WorkModeFault:    "FaultMode",
	WorkModeLine:     "LineMode",
	WorkModePVCharge: "PVChargeMode",
}

func ParseWorkMode(raw int) WorkMode {
	if raw < 0 || raw > int(workModeMaxDefine) {
		return WorkModeUnknown
	}
	return WorkMode(raw)
}

func (m WorkMode) String() string {
	if m < 0 || m > workModeMaxDefine {
		return UnknownStr
	}
	return workModeStr[m]
}

// charging states
type ChargingState int

const (
	ChargingStateUnknown         ChargingState = -1
	ChargingStateNoCharge        ChargingState = 0
	ChargingStateConstantCurrent ChargingState = 1
	ChargingStateConstantVoltage ChargingState = 2
	ChargingStateFloat           ChargingState = 3
)

func ParseChargingState(raw int) ChargingState {
	switch ChargingState(raw) {
	case ChargingStateNoCharge, ChargingStateConstantCurrent, ChargingStateConstantVoltage, ChargingStateFloat:
		return ChargingState(raw)
	default:
		return ChargingStateUnknown
	}
}

func (s ChargingState) String() string {
	switch s {
	case ChargingStateNoCharge:
		return "NoCharge"
	case ChargingStateConstantCurrent:
		return "ConstantCurrent"
	case ChargingStateConstantVoltage:
		return "ConstantVoltage"
	case ChargingStateFloat:
		return "Float"
	default:
		return UnknownStr
	}
}

// inverter models
type Model uint16

const (
	ModelUnknown  Model = 0
	ModelIVEM5048 Model = 0x0408
	ModelIVEM3024 Model = 0x0204
)

func ParseModel(raw int) Model {
	switch Model(raw) {
	case ModelIVEM5048, ModelIVEM3024:
		return Model(raw)
	default:
		return ModelUnknown
	}
}

func (m Model) String() string {
	switch m {
	case ModelIVEM5048:
		return "IVEM5048(5000VA/48V)"
	case ModelIVEM3024:
		return "IVEM3024(3000VA/24V)"
	default:
		return UnknownStr
	}
}

// Value is a normalized register value: either a number in physical units
// or a symbolic label.
type Value struct {
	number   float64
	decimals uint
	label    string
	isLabel  bool
}

func NumberValue(number float64, decimals uint) Value {
	return Value{number: number, decimals: decimals}
}

func LabelValue(label string) Value {
	return Value{label: label, isLabel: true}
}

func (v Value) IsLabel() bool {
	return v.isLabel
}

// Float64 returns the numeric value. ok is false for labels.
func (v Value) Float64() (float64, bool) {
	if v.isLabel {
		return 0, false
	}
	return v.number, true
}

func (v Value) Label() string {
	return v.label
}

func (v Value) Decimals() uint {
	return v.decimals
}

// String renders the value as telemetry payload text.
func (v Value) String() string {
	if v.isLabel {
		return v.label
	}
	return strconv.FormatFloat(v.number, 'f', int(v.decimals), 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isLabel {
		return []byte(strconv.Quote(v.label)), nil
	}
	return []byte(v.String()), nil
}

// Normalize converts a raw register value (already sign-interpreted) of the
// named field into physical units or a symbolic label.
func Normalize(name string, raw int) (Value, error) {
	if _, ok := registersByName[name]; !ok {
		return Value{}, &NormalizationError{Name: name, Raw: raw, Err: &NotFoundError{Name: name}}
	}
	switch name {
	case FIELD_BATTERY_VOLTAGE, FIELD_AC_FREQUENCY:
		return NumberValue(round2(float64(raw)/100), 2), nil
	case FIELD_AC_INPUT_VOLTAGE, FIELD_AC_OUTPUT_VOLTAGE, FIELD_PV_INPUT_VOLTAGE:
		return NumberValue(round2(float64(raw)/10), 1), nil
	case FIELD_WORK_MODE:
		return LabelValue(ParseWorkMode(raw).String()), nil
	case FIELD_CHARGING_STATE:
		return LabelValue(ParseChargingState(raw).String()), nil
	case FIELD_MODEL:
		return LabelValue(ParseModel(raw).String()), nil
	default:
		return NumberValue(float64(raw), 0), nil
	}
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// rawToInt interprets a register according to the field signedness.
func rawToInt(field Field, reg uint16) int {
	if field.Signed {
		return int(int16(reg))
	}
	return int(reg)
}

func (f Field) String() string {
	return fmt.Sprintf("%s@0x%04X", f.Name, f.Address)
}

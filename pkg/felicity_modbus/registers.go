package felicity_modbus

// field names
const (
	FIELD_MODEL                    = "model"
	FIELD_WORK_MODE                = "work_mode"
	FIELD_CHARGING_STATE           = "charging_state"
	FIELD_FAULT_CODE               = "fault_code"
	FIELD_POWER_FLOW_MSG           = "power_flow_msg"
	FIELD_BATTERY_VOLTAGE          = "battery_voltage"
	FIELD_BATTERY_CURRENT          = "battery_current"
	FIELD_BATTERY_POWER            = "battery_power"
	FIELD_AC_OUTPUT_VOLTAGE        = "ac_output_voltage"
	FIELD_AC_INPUT_VOLTAGE         = "ac_input_voltage"
	FIELD_AC_FREQUENCY             = "ac_frequency"
	FIELD_AC_OUTPUT_POWER          = "ac_output_power"
	FIELD_AC_OUTPUT_APPARENT_POWER = "ac_output_apparent_power"
	FIELD_LOAD_PERCENTAGE          = "load_percentage"
	FIELD_PV_INPUT_VOLTAGE         = "pv_input_voltage"
	FIELD_PV_INPUT_POWER           = "pv_input_power"
	FIELD_BATTERY_PERCENTAGE       = "battery_percentage"
)

// Field is a single holding register exposed by the inverter.
// Every field is one register wide.
type Field struct {
	Name    string
	Address uint16
	Signed  bool
}

var registers = []Field{
	{Name: FIELD_MODEL, Address: 0xF801},
	{Name: FIELD_WORK_MODE, Address: 0x1101},
	{Name: FIELD_CHARGING_STATE, Address: 0x1102},
	{Name: FIELD_FAULT_CODE, Address: 0x1103},
	{Name: FIELD_POWER_FLOW_MSG, Address: 0x1104},
	{Name: FIELD_BATTERY_VOLTAGE, Address: 0x1108},
	{Name: FIELD_BATTERY_CURRENT, Address: 0x1109, Signed: true},
	{Name: FIELD_BATTERY_POWER, Address: 0x110A, Signed: true},
	{Name: FIELD_AC_OUTPUT_VOLTAGE, Address: 0x1111},
	{Name: FIELD_AC_INPUT_VOLTAGE, Address: 0x1117},
	{Name: FIELD_AC_FREQUENCY, Address: 0x1119},
	{Name: FIELD_AC_OUTPUT_POWER, Address: 0x111E, Signed: true},
	{Name: FIELD_AC_OUTPUT_APPARENT_POWER, Address: 0x111F, Signed: true},
	{Name: FIELD_LOAD_PERCENTAGE, Address: 0x1120},
	{Name: FIELD_PV_INPUT_VOLTAGE, Address: 0x1126},
	{Name: FIELD_PV_INPUT_POWER, Address: 0x112A},
	{Name: FIELD_BATTERY_PERCENTAGE, Address: 0x1132},
}

// settings registers. Semantics of most of them are still being figured out,
// values are written as-is.
var writableRegisters = []Field{
	{Name: "ac_output_frequency", Address: 0x2129},
	{Name: "output_source_priority", Address: 0x212A},
	{Name: "application_mode", Address: 0x212B},
	{Name: "charging_source_priority", Address: 0x212C},
	{Name: "max_charging_current", Address: 0x212E},
	{Name: "max_ac_charging_current", Address: 0x212F},
	{Name: "buzzer_enabled", Address: 0x2131},
	{Name: "overload_restart", Address: 0x2133},
	{Name: "overtemperature_restart", Address: 0x2134},
	{Name: "lcd_backlight", Address: 0x2135},
	{Name: "overload_to_bypass", Address: 0x2137},
}

var (
	registersByName         = indexFields(registers)
	writableRegistersByName = indexFields(writableRegisters)
)

func indexFields(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}

// Fields returns the readable register table in its fixed read order.
func Fields() []Field {
	out := make([]Field, len(registers))
	copy(out, registers)
	return out
}

func FieldByName(name string) (Field, bool) {
	f, ok := registersByName[name]
	return f, ok
}

func AddressOf(name string) (uint16, error) {
	f, ok := registersByName[name]
	if !ok {
		return 0, &NotFoundError{Name: name}
	}
	return f.Address, nil
}

func WritableFields() []Field {
	out := make([]Field, len(writableRegisters))
	copy(out, writableRegisters)
	return out
}

func WritableAddressOf(name string) (uint16, error) {
	f, ok := writableRegistersByName[name]
	if !ok {
		return 0, &NotFoundError{Name: name}
	}
	return f.Address, nil
}

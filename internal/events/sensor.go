package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_BATTERY      = "battery"
	DEVICE_CLASS_CURRENT      = "current"
	DEVICE_CLASS_FREQUENCY    = "frequency"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_APPARENT     = "apparent_power"
	DEVICE_CLASS_VOLTAGE      = "voltage"
	DEVICE_CLASS_ENUM         = "enum"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
)

type fieldSensorMeta struct {
	name        string
	unit        string
	deviceClass string
	diagnostic  bool
	icon        string
}

var fieldSensors = map[string]fieldSensorMeta{
	felicity_modbus.FIELD_MODEL:                    {name: "Model", diagnostic: true, icon: "mdi:information-outline"},
	felicity_modbus.FIELD_WORK_MODE:                {name: "Work mode", deviceClass: DEVICE_CLASS_ENUM},
	felicity_modbus.FIELD_CHARGING_STATE:           {name: "Charging state", deviceClass: DEVICE_CLASS_ENUM},
	felicity_modbus.FIELD_FAULT_CODE:               {name: "Fault code", diagnostic: true, icon: "mdi:alert-circle-outline"},
	felicity_modbus.FIELD_POWER_FLOW_MSG:           {name: "Power flow message", diagnostic: true},
	felicity_modbus.FIELD_BATTERY_VOLTAGE:          {name: "Battery voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE},
	felicity_modbus.FIELD_BATTERY_CURRENT:          {name: "Battery current", unit: "A", deviceClass: DEVICE_CLASS_CURRENT},
	felicity_modbus.FIELD_BATTERY_POWER:            {name: "Battery power", unit: "W", deviceClass: DEVICE_CLASS_POWER},
	felicity_modbus.FIELD_AC_OUTPUT_VOLTAGE:        {name: "AC output voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE},
	felicity_modbus.FIELD_AC_INPUT_VOLTAGE:         {name: "AC input voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE},
	felicity_modbus.FIELD_AC_FREQUENCY:             {name: "AC frequency", unit: "Hz", deviceClass: DEVICE_CLASS_FREQUENCY},
	felicity_modbus.FIELD_AC_OUTPUT_POWER:          {name: "AC output power", unit: "W", deviceClass: DEVICE_CLASS_POWER},
	felicity_modbus.FIELD_AC_OUTPUT_APPARENT_POWER: {name: "AC output apparent power", unit: "VA", deviceClass: DEVICE_CLASS_APPARENT},
	felicity_modbus.FIELD_LOAD_PERCENTAGE:          {name: "Load", unit: "%", icon: "mdi:gauge"},
	felicity_modbus.FIELD_PV_INPUT_VOLTAGE:         {name: "PV input voltage", unit: "V", deviceClass: DEVICE_CLASS_VOLTAGE},
	felicity_modbus.FIELD_PV_INPUT_POWER:           {name: "PV input power", unit: "W", deviceClass: DEVICE_CLASS_POWER},
	felicity_modbus.FIELD_BATTERY_PERCENTAGE:       {name: "Battery", unit: "%", deviceClass: DEVICE_CLASS_BATTERY},
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("felicity_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Felicity2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Felicity2MQTT %s", md5HashShort(baseTopic)),
	}
}

// InverterDevice identifies the inverter by base topic, the register map
// exposes no serial number.
func InverterDevice(baseTopic string, model string, bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("felicity_inverter_%s", md5HashShort(baseTopic)),
		Manufacturer: "Felicity Solar",
		Model:        model,
		Name:         fmt.Sprintf("Felicity %s", model),
		ViaDevice:    bridge.Id,
	}
}

// FieldSensors describes every catalog field as a sensor, in catalog order.
func FieldSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	for _, f := range felicity_modbus.Fields() {
		meta, ok := fieldSensors[f.Name]
		if !ok {
			meta = fieldSensorMeta{name: f.Name}
		}
		sensor := GenericSensor{
			Device:            inverterDevice,
			Id:                f.Name,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              meta.name,
			UnitOfMeasurement: meta.unit,
			DeviceClass:       meta.deviceClass,
			Icon:              meta.icon,
			UniqueId:          uniqueId(inverterDevice.Id, f.Name),
		}
		if meta.unit != "" {
			sensor.StateClass = STATE_CLASS_MEASUREMENT
		}
		if meta.diagnostic {
			sensor.EntityCategory = ENTITY_CLASS_DIAGNOSTIC
			sensor.EnabledByDefault = optionalBool(false)
		}
		sensors = append(sensors, sensor)
	}

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}

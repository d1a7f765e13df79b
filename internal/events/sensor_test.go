package events

import (
	"testing"

	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/stretchr/testify/assert"
)

func TestFieldSensorsCoverCatalog(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("felicity")
	inverter := InverterDevice("felicity", "IVEM5048(5000VA/48V)", bridge)
	sensors := FieldSensors(inverter)

	assert.Len(sensors, len(felicity_modbus.Fields()))
	for i, f := range felicity_modbus.Fields() {
		assert.Equal(f.Name, sensors[i].Id)
		assert.Equal(uniqueId(inverter.Id, f.Name), sensors[i].UniqueId)
	}

	voltage := sensors[5]
	assert.Equal(felicity_modbus.FIELD_BATTERY_VOLTAGE, voltage.Id)
	assert.Equal("V", voltage.UnitOfMeasurement)
	assert.Equal(DEVICE_CLASS_VOLTAGE, voltage.DeviceClass)
	assert.Equal(STATE_CLASS_MEASUREMENT, voltage.StateClass)

	model := sensors[0]
	assert.Equal(ENTITY_CLASS_DIAGNOSTIC, model.EntityCategory)
	assert.Empty(model.StateClass)
}

func TestDeviceIdsAreStable(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(BridgeDevice("felicity").Id, BridgeDevice("felicity").Id)
	assert.NotEqual(BridgeDevice("felicity").Id, BridgeDevice("garage").Id)

	bridge := BridgeDevice("felicity")
	inverter := InverterDevice("felicity", "IVEM3024(3000VA/24V)", bridge)
	assert.Equal(bridge.Id, inverter.ViaDevice)

	sensors := BridgeSensors(bridge)
	assert.Len(sensors, 1)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)
	assert.Equal(domain.SENSOR_TYPE_BINARY, sensors[0].SensorType)
}

package service

import (
	"github.com/berfenger/felicity2mqtt/internal/core/domain"
	"github.com/berfenger/felicity2mqtt/internal/core/port"
	"github.com/berfenger/felicity2mqtt/internal/events"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"go.uber.org/zap"
)

// DiscoverySensors builds the Home Assistant sensors of the bridge and the
// inverter. The model is read once, an unreadable model is announced as Unknown.
func DiscoverySensors(reader port.FieldReader, baseTopic string, logger *zap.Logger) []domain.GenericSensor {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := felicity_modbus.UnknownStr
	value, err := reader.Read(felicity_modbus.FIELD_MODEL)
	if err != nil {
		logger.Warn("hadiscovery@model failed to read inverter model", zap.Error(err))
	} else {
		model = value.String()
	}

	bridge := events.BridgeDevice(baseTopic)
	inverter := events.InverterDevice(baseTopic, model, bridge)

	sensors := events.BridgeSensors(bridge)
	sensors = append(sensors, events.FieldSensors(inverter)...)
	return sensors
}

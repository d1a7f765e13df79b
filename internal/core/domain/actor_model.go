package domain

import (
	"errors"
	"time"

	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"
)

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_MODBUS = "modbus"
)

var ErrBusActorStopped = errors.New("modbus actor stopped before serving the request")

// BusTaskStarted is sent to the requester when its request leaves the queue
// and reaches the bus. The response follows within Timeout.
type BusTaskStarted struct {
	Timeout time.Duration
}

type ReadFieldRequest struct {
	ActorRequestMixIn
	Name string
}

type ReadFieldResponse struct {
	ActorResponseMixIn
	Name  string
	Value felicity_modbus.Value
}

type ReadSnapshotRequest struct {
	ActorRequestMixIn
}

type ReadSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot felicity_modbus.Snapshot
}

// GetLastValuesRequest never touches the bus.
type GetLastValuesRequest struct {
	ActorRequestMixIn
}

type GetLastValuesResponse struct {
	ActorResponseMixIn
	Values map[string]felicity_modbus.Value
}

type WriteRegisterRequest struct {
	ActorRequestMixIn
	Address uint16
	Value   uint16
}

type WriteRegisterResponse struct {
	ActorResponseMixIn
}

type ScanRegistersRequest struct {
	ActorRequestMixIn
	From uint16
	To   uint16
}

type ScanRegistersResponse struct {
	ActorResponseMixIn
	Results []felicity_modbus.ScanResult
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

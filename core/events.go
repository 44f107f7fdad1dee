package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// ErrUnknownEvent is returned for event kinds or names outside the catalog.
var ErrUnknownEvent = errors.New("unknown event")

// EventKind identifies one of the ten random shocks applied each tick.
type EventKind int

const (
	EventBatteryDrain EventKind = iota
	EventOverheating
	EventSolarPanelMisalignment
	EventSignalInterference
	EventDataStorageOverload
	EventComponentWear
	EventThrusterMisfire
	EventDebrisNearMiss
	EventDebrisCollision
	EventSolarStorm

	numEvents
)

// NumEvents is the size of the event catalog.
const NumEvents = int(numEvents)

// Delta is a fixed additive change to one attribute.
type Delta struct {
	Field  model.Field `json:"field"`
	Amount float64     `json:"amount"`
}

type eventSpec struct {
	name   string
	deltas []Delta
}

var eventCatalog = [numEvents]eventSpec{
	EventBatteryDrain: {"Battery Drain", []Delta{
		{model.FieldBatteryLevel, -12},
		{model.FieldBatteryHealth, -2},
	}},
	EventOverheating: {"Overheating", []Delta{
		{model.FieldTemperature, 15},
	}},
	EventSolarPanelMisalignment: {"Solar Panel Misalignment", []Delta{
		{model.FieldSolarPanelEfficiency, -18},
	}},
	EventSignalInterference: {"Signal Interference", []Delta{
		{model.FieldSignalStrength, -25},
		{model.FieldCPUGPUUsage, 8},
	}},
	EventDataStorageOverload: {"Data Storage Overload", []Delta{
		{model.FieldDataStorageUsed, 25},
	}},
	EventComponentWear: {"Component Wear", []Delta{
		{model.FieldComponentHealth, -8},
	}},
	EventThrusterMisfire: {"Thruster Misfire", []Delta{
		{model.FieldComponentHealth, -12},
		{model.FieldTemperature, 8},
		{model.FieldPowerConsumptionRate, 5},
	}},
	EventDebrisNearMiss: {"Debris Near Miss", []Delta{
		{model.FieldDebrisRiskLevel, 15},
		{model.FieldCPUGPUUsage, 10},
	}},
	EventDebrisCollision: {"Debris Collision", []Delta{
		{model.FieldComponentHealth, -18},
		{model.FieldSolarPanelEfficiency, -15},
		{model.FieldTemperature, 6},
		{model.FieldDebrisRiskLevel, 20},
	}},
	EventSolarStorm: {"Solar Storm", []Delta{
		{model.FieldSignalStrength, -20},
		{model.FieldTemperature, 12},
		{model.FieldSolarPanelEfficiency, 5},
		{model.FieldBatteryHealth, -3},
		{model.FieldComponentHealth, -5},
	}},
}

// Valid reports whether k is in the catalog.
func (k EventKind) Valid() bool { return k >= 0 && k < numEvents }

// String returns the display name, e.g. "Solar Storm".
func (k EventKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventCatalog[k].name
}

// Deltas returns a copy of the event's direct effects.
func (k EventKind) Deltas() []Delta {
	if !k.Valid() {
		return nil
	}
	return append([]Delta(nil), eventCatalog[k].deltas...)
}

// Events returns the catalog in its fixed order.
func Events() []EventKind {
	out := make([]EventKind, NumEvents)
	for i := range out {
		out[i] = EventKind(i)
	}
	return out
}

// ParseEvent resolves a display name to its kind.
func ParseEvent(name string) (EventKind, error) {
	for i := range eventCatalog {
		if eventCatalog[i].name == name {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// RandomEvent draws one event uniformly from the catalog.
func RandomEvent(r Rand) EventKind {
	return EventKind(r.IntN(NumEvents))
}

// ApplyEvent applies the direct effects of k, settles the vector and
// recalculates the dependent attributes. An unknown kind leaves t untouched
// and reports ErrUnknownEvent.
func ApplyEvent(k EventKind, t model.Telemetry) (model.Telemetry, error) {
	if !k.Valid() {
		return t, fmt.Errorf("apply event: %w: %d", ErrUnknownEvent, int(k))
	}
	for _, d := range eventCatalog[k].deltas {
		t = t.With(d.Field, t.Get(d.Field)+d.Amount)
	}
	return Recalculate(t.Settle()), nil
}

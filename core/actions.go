package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

var (
	// ErrUnknownAction is returned for action kinds or names outside the catalog.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidActionVector is returned when a flag vector does not line up
	// with the action catalog.
	ErrInvalidActionVector = errors.New("invalid action vector")
)

// ActionKind identifies one corrective action. The numeric order is the
// position of the action in classifier output and dataset label columns.
type ActionKind int

const (
	ActionReroutePower ActionKind = iota
	ActionPassiveCooling
	ActionRecalibratePosition
	ActionInitiateDocking
	ActionIncreaseCooling
	ActionAdjustAntenna
	ActionOptimizeTransmission
	ActionDeleteData
	ActionAdjustSunlightAbsorption
	ActionDisableNonEssential
	ActionRedistributeWorkload

	numActions
)

// NumActions is the size of the action catalog and the required length of
// every ActionFlags vector.
const NumActions = int(numActions)

// EffectOp says how an Effect changes its field.
type EffectOp int

const (
	// EffectAdd adds a magnitude drawn from [Low, High].
	EffectAdd EffectOp = iota
	// EffectSub subtracts a magnitude drawn from [Low, High].
	EffectSub
	// EffectSet assigns Low.
	EffectSet
)

func (op EffectOp) String() string {
	switch op {
	case EffectAdd:
		return "add"
	case EffectSub:
		return "sub"
	case EffectSet:
		return "set"
	default:
		return fmt.Sprintf("EffectOp(%d)", int(op))
	}
}

// MarshalText encodes op by name.
func (op EffectOp) MarshalText() ([]byte, error) { return []byte(op.String()), nil }

// Effect is one parameterised change made by an action. Magnitudes are
// integers drawn uniformly from the inclusive range on every application;
// Low == High gives a fixed change.
type Effect struct {
	Field model.Field `json:"field"`
	Op    EffectOp    `json:"op"`
	Low   int         `json:"low"`
	High  int         `json:"high"`
}

func add(f model.Field, lo, hi int) Effect { return Effect{Field: f, Op: EffectAdd, Low: lo, High: hi} }
func sub(f model.Field, lo, hi int) Effect { return Effect{Field: f, Op: EffectSub, Low: lo, High: hi} }
func set(f model.Field, v int) Effect      { return Effect{Field: f, Op: EffectSet, Low: v, High: v} }

// actuatorFloors bound how far a decreasing effect can drive a field.
var actuatorFloors = map[model.Field]float64{
	model.FieldPowerConsumptionRate: 5,
	model.FieldCPUGPUUsage:          5,
	model.FieldTemperature:          0,
}

func (e Effect) apply(t model.Telemetry, r Rand) model.Telemetry {
	cur := t.Get(e.Field)
	switch e.Op {
	case EffectSet:
		return t.With(e.Field, float64(e.Low))
	case EffectAdd:
		return t.With(e.Field, cur+float64(uniformInt(r, e.Low, e.High)))
	case EffectSub:
		next := cur - float64(uniformInt(r, e.Low, e.High))
		if floor, ok := actuatorFloors[e.Field]; ok {
			// never below the floor, and never raised when already under it
			next = math.Max(next, math.Min(floor, cur))
		}
		return t.With(e.Field, next)
	default:
		return t
	}
}

type actionSpec struct {
	name    string
	effects []Effect
}

var actionCatalog = [numActions]actionSpec{
	ActionReroutePower: {"Reroute power to core functions", []Effect{
		sub(model.FieldPowerConsumptionRate, 10, 25),
		sub(model.FieldCPUGPUUsage, 10, 20),
		add(model.FieldBatteryLevel, 8, 15),
		sub(model.FieldTemperature, 3, 3),
		add(model.FieldComponentHealth, 2, 2),
	}},
	ActionPassiveCooling: {"Adjust orientation for passive cooling", []Effect{
		sub(model.FieldTemperature, 10, 20),
		add(model.FieldPowerConsumptionRate, 5, 15),
		add(model.FieldBatteryLevel, 3, 8),
		add(model.FieldCPUGPUUsage, 5, 5),
		add(model.FieldComponentHealth, 2, 2),
	}},
	ActionRecalibratePosition: {"Recalibrate position, tweak pitch, roll, yaw", []Effect{
		sub(model.FieldDebrisRiskLevel, 5, 10),
		add(model.FieldPowerConsumptionRate, 10, 20),
		add(model.FieldCPUGPUUsage, 8, 15),
		sub(model.FieldBatteryLevel, 1, 3),
		add(model.FieldSignalStrength, 3, 3),
		add(model.FieldTemperature, 2, 2),
	}},
	ActionInitiateDocking: {"Initiate Docking sequence to ISS", []Effect{
		add(model.FieldBatteryHealth, 20, 50),
		add(model.FieldComponentHealth, 30, 60),
		add(model.FieldBatteryLevel, 80, 100),
		sub(model.FieldDataStorageUsed, 30, 70),
		add(model.FieldSignalStrength, 20, 20),
		sub(model.FieldPowerConsumptionRate, 15, 15),
		sub(model.FieldCPUGPUUsage, 10, 10),
		set(model.FieldTemperature, 25),
		add(model.FieldSolarPanelEfficiency, 15, 15),
		sub(model.FieldDebrisRiskLevel, 5, 5),
	}},
	ActionIncreaseCooling: {"Increase cooling system power", []Effect{
		sub(model.FieldTemperature, 15, 30),
		add(model.FieldPowerConsumptionRate, 10, 20),
		add(model.FieldCPUGPUUsage, 8, 15),
		sub(model.FieldBatteryLevel, 2, 5),
		add(model.FieldComponentHealth, 5, 5),
	}},
	ActionAdjustAntenna: {"Adjust antenna position or switch frequency", []Effect{
		add(model.FieldSignalStrength, 15, 30),
		add(model.FieldPowerConsumptionRate, 5, 10),
		add(model.FieldCPUGPUUsage, 5, 5),
		sub(model.FieldBatteryLevel, 1, 2),
		sub(model.FieldDataStorageUsed, 2, 2),
	}},
	ActionOptimizeTransmission: {"Optimize data transmission", []Effect{
		sub(model.FieldDataStorageUsed, 10, 25),
		add(model.FieldCPUGPUUsage, 10, 20),
		sub(model.FieldSignalStrength, 5, 10),
		add(model.FieldBatteryLevel, 1, 4),
		add(model.FieldPowerConsumptionRate, 7, 7),
	}},
	ActionDeleteData: {"Delete unnecessary data", []Effect{
		sub(model.FieldDataStorageUsed, 20, 40),
		add(model.FieldCPUGPUUsage, 5, 15),
		add(model.FieldPowerConsumptionRate, 4, 4),
		add(model.FieldBatteryLevel, 3, 7),
	}},
	ActionAdjustSunlightAbsorption: {"Adjust pitch, yaw, roll for sunlight absorption", []Effect{
		add(model.FieldSolarPanelEfficiency, 10, 25),
		add(model.FieldPowerConsumptionRate, 5, 10),
		add(model.FieldBatteryLevel, 15, 25),
		add(model.FieldCPUGPUUsage, 3, 3),
		add(model.FieldTemperature, 2, 2),
	}},
	ActionDisableNonEssential: {"Disable non-essential systems", []Effect{
		sub(model.FieldPowerConsumptionRate, 15, 30),
		sub(model.FieldCPUGPUUsage, 10, 20),
		add(model.FieldBatteryLevel, 10, 20),
		sub(model.FieldTemperature, 4, 4),
		sub(model.FieldSignalStrength, 5, 5),
	}},
	ActionRedistributeWorkload: {"Redistribute workload, reduce power to affected components", []Effect{
		sub(model.FieldCPUGPUUsage, 10, 20),
		sub(model.FieldPowerConsumptionRate, 8, 15),
		add(model.FieldComponentHealth, 5, 10),
		add(model.FieldBatteryLevel, 5, 12),
		sub(model.FieldTemperature, 3, 3),
	}},
}

// Valid reports whether k is in the catalog.
func (k ActionKind) Valid() bool { return k >= 0 && k < numActions }

// String returns the display name of the action.
func (k ActionKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
	return actionCatalog[k].name
}

// Effects returns a copy of the action's parameter table.
func (k ActionKind) Effects() []Effect {
	if !k.Valid() {
		return nil
	}
	return append([]Effect(nil), actionCatalog[k].effects...)
}

// Actions returns the catalog in its fixed order.
func Actions() []ActionKind {
	out := make([]ActionKind, NumActions)
	for i := range out {
		out[i] = ActionKind(i)
	}
	return out
}

// ParseAction resolves a display name to its kind.
func ParseAction(name string) (ActionKind, error) {
	for i := range actionCatalog {
		if actionCatalog[i].name == name {
			return ActionKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// ApplyAction applies one action's effects, settles the vector and
// recalculates the dependent attributes.
func ApplyAction(k ActionKind, t model.Telemetry, r Rand) (model.Telemetry, error) {
	if !k.Valid() {
		return t, fmt.Errorf("apply action: %w: %d", ErrUnknownAction, int(k))
	}
	for _, e := range actionCatalog[k].effects {
		t = e.apply(t, r)
	}
	return Recalculate(t.Settle()), nil
}

// ActionFlags is a 0/1 vector positionally aligned with the action catalog.
type ActionFlags []int

// FlagsFor builds a flag vector with the given actions set.
func FlagsFor(kinds ...ActionKind) ActionFlags {
	flags := make(ActionFlags, NumActions)
	for _, k := range kinds {
		if k.Valid() {
			flags[k] = 1
		}
	}
	return flags
}

// Validate checks length and that every entry is 0 or 1.
func (f ActionFlags) Validate() error {
	if len(f) != NumActions {
		return fmt.Errorf("%w: got %d flags, catalog has %d actions", ErrInvalidActionVector, len(f), NumActions)
	}
	for i, v := range f {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: flag %d is %d, want 0 or 1", ErrInvalidActionVector, i, v)
		}
	}
	return nil
}

// Kinds lists the actions whose flag is set, in catalog order.
func (f ActionFlags) Kinds() []ActionKind {
	var out []ActionKind
	for i, v := range f {
		if v == 1 && i < NumActions {
			out = append(out, ActionKind(i))
		}
	}
	return out
}

// Any reports whether at least one flag is set.
func (f ActionFlags) Any() bool {
	for _, v := range f {
		if v == 1 {
			return true
		}
	}
	return false
}

func (f ActionFlags) String() string {
	var b strings.Builder
	for _, v := range f {
		fmt.Fprintf(&b, "%d", v)
	}
	return b.String()
}

// ApplyFixes applies every flagged action in catalog order. Each action sees
// the recalculated result of the one before it. A malformed vector is
// rejected before anything is applied. The applied actions are returned.
func ApplyFixes(t model.Telemetry, flags ActionFlags, r Rand) (model.Telemetry, []ActionKind, error) {
	if err := flags.Validate(); err != nil {
		return t, nil, err
	}
	applied := flags.Kinds()
	for _, k := range applied {
		var err error
		if t, err = ApplyAction(k, t, r); err != nil {
			return t, nil, err
		}
	}
	return t, applied, nil
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrUnknownField is returned when a telemetry field name cannot be resolved.
var ErrUnknownField = errors.New("unknown telemetry field")

// Field enumerates the ten telemetry attributes in their canonical order.
// The order is shared by the classifier input, dataset columns and the
// JSON wire form.
type Field int

const (
	FieldBatteryLevel Field = iota
	FieldBatteryHealth
	FieldSignalStrength
	FieldPowerConsumptionRate
	FieldComponentHealth
	FieldCPUGPUUsage
	FieldSolarPanelEfficiency
	FieldTemperature
	FieldDataStorageUsed
	FieldDebrisRiskLevel

	numFields
)

// NumFields is the number of attributes in a Telemetry vector.
const NumFields = int(numFields)

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp pins v into the range. Values on a bound are returned unchanged.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the inclusive range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var fieldNames = [numFields]string{
	"Battery_Level",
	"Battery_Health",
	"Signal_Strength",
	"Power_Consumption_Rate",
	"Component_Health",
	"CPU_GPU_Usage",
	"Solar_Panel_Efficiency",
	"Temperature",
	"Data_Storage_Used",
	"Debris_Risk_Level",
}

var percent = Range{Min: 0, Max: 100}

var fieldRanges = [numFields]Range{
	FieldBatteryLevel:         percent,
	FieldBatteryHealth:        percent,
	FieldSignalStrength:       percent,
	FieldPowerConsumptionRate: percent,
	FieldComponentHealth:      percent,
	FieldCPUGPUUsage:          percent,
	FieldSolarPanelEfficiency: percent,
	FieldTemperature:          {Min: -50, Max: 100},
	FieldDataStorageUsed:      percent,
	FieldDebrisRiskLevel:      percent,
}

// String returns the wire name of the field, e.g. "Battery_Level".
func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// MarshalText encodes f by its wire name.
func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, int(f))
	}
	return []byte(fieldNames[f]), nil
}

// UnmarshalText decodes a wire name.
func (f *Field) UnmarshalText(b []byte) error {
	parsed, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Valid reports whether f is one of the ten known fields.
func (f Field) Valid() bool { return f >= 0 && f < numFields }

// Range returns the declared bounds of the field.
func (f Field) Range() Range {
	if !f.Valid() {
		return Range{}
	}
	return fieldRanges[f]
}

// Fields returns every field in canonical order.
func Fields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// ParseField resolves a wire name to its Field.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Telemetry is the satellite attribute vector. It is a plain value: every
// operation returns a new vector and never alters the receiver's caller.
type Telemetry struct {
	BatteryLevel         float64 `json:"Battery_Level"`
	BatteryHealth        float64 `json:"Battery_Health"`
	SignalStrength       float64 `json:"Signal_Strength"`
	PowerConsumptionRate float64 `json:"Power_Consumption_Rate"`
	ComponentHealth      float64 `json:"Component_Health"`
	CPUGPUUsage          float64 `json:"CPU_GPU_Usage"`
	SolarPanelEfficiency float64 `json:"Solar_Panel_Efficiency"`
	Temperature          float64 `json:"Temperature"`
	DataStorageUsed      float64 `json:"Data_Storage_Used"`
	DebrisRiskLevel      float64 `json:"Debris_Risk_Level"`
}

func (t *Telemetry) ref(f Field) *float64 {
	switch f {
	case FieldBatteryLevel:
		return &t.BatteryLevel
	case FieldBatteryHealth:
		return &t.BatteryHealth
	case FieldSignalStrength:
		return &t.SignalStrength
	case FieldPowerConsumptionRate:
		return &t.PowerConsumptionRate
	case FieldComponentHealth:
		return &t.ComponentHealth
	case FieldCPUGPUUsage:
		return &t.CPUGPUUsage
	case FieldSolarPanelEfficiency:
		return &t.SolarPanelEfficiency
	case FieldTemperature:
		return &t.Temperature
	case FieldDataStorageUsed:
		return &t.DataStorageUsed
	case FieldDebrisRiskLevel:
		return &t.DebrisRiskLevel
	default:
		return nil
	}
}

// Get returns the value of f, or 0 for an invalid field.
func (t Telemetry) Get(f Field) float64 {
	if p := t.ref(f); p != nil {
		return *p
	}
	return 0
}

// With returns a copy of t with f set to v. Invalid fields are ignored.
func (t Telemetry) With(f Field, v float64) Telemetry {
	if p := t.ref(f); p != nil {
		*p = v
	}
	return t
}

// Values returns the attribute values in canonical field order.
func (t Telemetry) Values() []float64 {
	out := make([]float64, NumFields)
	for i := range out {
		out[i] = t.Get(Field(i))
	}
	return out
}

// FromValues builds a vector from values in canonical field order.
func FromValues(values []float64) (Telemetry, error) {
	if len(values) != NumFields {
		return Telemetry{}, fmt.Errorf("telemetry vector needs %d values, got %d", NumFields, len(values))
	}
	var t Telemetry
	for i, v := range values {
		t = t.With(Field(i), v)
	}
	return t, nil
}

// Map returns the flat field-name to value mapping used on the wire.
func (t Telemetry) Map() map[string]float64 {
	out := make(map[string]float64, NumFields)
	for i, name := range fieldNames {
		out[name] = t.Get(Field(i))
	}
	return out
}

// FromMap builds a vector from a flat mapping. Every field must be present
// and no unknown keys are allowed.
func FromMap(m map[string]float64) (Telemetry, error) {
	var t Telemetry
	seen := 0
	for name, v := range m {
		f, err := ParseField(name)
		if err != nil {
			return Telemetry{}, err
		}
		t = t.With(f, v)
		seen++
	}
	if seen != NumFields {
		missing := make([]string, 0, NumFields)
		for _, name := range fieldNames {
			if _, ok := m[name]; !ok {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return Telemetry{}, fmt.Errorf("telemetry missing fields: %s", strings.Join(missing, ", "))
	}
	return t, nil
}

// UnmarshalJSON decodes the flat wire mapping, rejecting partial vectors.
func (t *Telemetry) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Clamp pins every field into its declared range.
func (t Telemetry) Clamp() Telemetry {
	for i := 0; i < NumFields; i++ {
		f := Field(i)
		t = t.With(f, f.Range().Clamp(t.Get(f)))
	}
	return t
}

// Round rounds every field to two decimal places.
func (t Telemetry) Round() Telemetry {
	for i := 0; i < NumFields; i++ {
		f := Field(i)
		t = t.With(f, Round2(t.Get(f)))
	}
	return t
}

// Settle clamps then rounds: the only form handed to downstream consumers.
func (t Telemetry) Settle() Telemetry {
	return t.Clamp().Round()
}

// InRange reports whether every field lies within its declared range.
func (t Telemetry) InRange() bool {
	for i := 0; i < NumFields; i++ {
		f := Field(i)
		if !f.Range().Contains(t.Get(f)) {
			return false
		}
	}
	return true
}

// Round2 rounds v to two decimals, half away from zero. Small negatives
// round to positive zero so they never serialise as -0.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

package classifier

import (
	"context"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// Thresholds parameterise the rule classifier.
type Thresholds struct {
	CriticalBatteryHealth   float64 `json:"critical_battery_health"`
	CriticalComponentHealth float64 `json:"critical_component_health"`
	CriticalBatteryLevel    float64 `json:"critical_battery_level"`
	LowBatteryLevel         float64 `json:"low_battery_level"`
	CriticalTemperature     float64 `json:"critical_temperature"`
	HighTemperature         float64 `json:"high_temperature"`
	LowTemperature          float64 `json:"low_temperature"`
	LowSolarEfficiency      float64 `json:"low_solar_efficiency"`
	LowSignal               float64 `json:"low_signal"`
	HighStorage             float64 `json:"high_storage"`
	HighCPU                 float64 `json:"high_cpu"`
	HighDebrisRisk          float64 `json:"high_debris_risk"`
}

// DefaultThresholds are the cut-offs used to label the training dataset.
var DefaultThresholds = Thresholds{
	CriticalBatteryHealth:   30,
	CriticalComponentHealth: 50,
	CriticalBatteryLevel:    20,
	LowBatteryLevel:         40,
	CriticalTemperature:     80,
	HighTemperature:         60,
	LowTemperature:          -20,
	LowSolarEfficiency:      40,
	LowSignal:               30,
	HighStorage:             85,
	HighCPU:                 90,
	HighDebrisRisk:          8,
}

// Rules is a deterministic threshold classifier. The zero value uses
// DefaultThresholds.
type Rules struct {
	Thresholds *Thresholds
}

// NewRules returns a rule classifier with the given thresholds.
func NewRules(th Thresholds) Rules {
	return Rules{Thresholds: &th}
}

// Predict labels t. It only fails when ctx is already done.
func (r Rules) Predict(ctx context.Context, t model.Telemetry) (core.ActionFlags, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Label(t), nil
}

// Label returns the flag vector for t without a context.
func (r Rules) Label(t model.Telemetry) core.ActionFlags {
	th := DefaultThresholds
	if r.Thresholds != nil {
		th = *r.Thresholds
	}

	flags := make(core.ActionFlags, core.NumActions)
	set := func(kinds ...core.ActionKind) {
		for _, k := range kinds {
			flags[k] = 1
		}
	}

	if t.BatteryHealth < th.CriticalBatteryHealth || t.ComponentHealth < th.CriticalComponentHealth {
		set(core.ActionInitiateDocking)
	}

	switch {
	case t.BatteryLevel < th.CriticalBatteryLevel:
		set(core.ActionDisableNonEssential, core.ActionReroutePower)
	case t.BatteryLevel < th.LowBatteryLevel:
		set(core.ActionReroutePower)
	}

	switch {
	case t.Temperature > th.CriticalTemperature:
		set(core.ActionIncreaseCooling, core.ActionPassiveCooling)
	case t.Temperature > th.HighTemperature:
		set(core.ActionIncreaseCooling)
	case t.Temperature < th.LowTemperature:
		set(core.ActionPassiveCooling)
	}

	if t.SolarPanelEfficiency < th.LowSolarEfficiency {
		set(core.ActionAdjustSunlightAbsorption)
	}
	if t.SignalStrength < th.LowSignal {
		set(core.ActionAdjustAntenna)
	}
	if t.DataStorageUsed > th.HighStorage {
		set(core.ActionOptimizeTransmission, core.ActionDeleteData)
	}
	if t.CPUGPUUsage > th.HighCPU {
		set(core.ActionRedistributeWorkload)
	}
	if t.DebrisRiskLevel > th.HighDebrisRisk {
		set(core.ActionRecalibratePosition)
	}
	return flags
}

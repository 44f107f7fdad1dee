// Package core holds the telemetry engine: dependent-attribute recalculation,
// event shocks, corrective actions and the initial healthy state.
package core

import (
	"math"

	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// PowerPolicy carries the constants of the dependency chain. The values are
// tunable policy rather than physics; DefaultPolicy is the canonical set.
type PowerPolicy struct {
	// Power_Consumption_Rate = BasePower + CPUWeight*cpu
	//   + HealthWeight*(100-health) + TempWeight*max(0, temp-TempThreshold)
	BasePower     float64
	CPUWeight     float64
	HealthWeight  float64
	TempWeight    float64
	TempThreshold float64

	// CPU_GPU_Usage = max(BaseCPU, CPURetention*cpu + CPUHealthWeight*(100-health)
	//   + CPUTempWeight*max(0, temp-CPUTempThreshold) + StorageWeight*storage)
	BaseCPU          float64
	CPURetention     float64
	CPUHealthWeight  float64
	CPUTempWeight    float64
	CPUTempThreshold float64
	StorageWeight    float64

	// Battery_Level += (solar - power) * chargeRate * ChargeScale, where
	// solar = MaxSolarInput * efficiency/100 * batteryHealth/100.
	MaxSolarInput     float64
	ChargeScale       float64
	HighChargeLevel   float64
	LowChargeLevel    float64
	HighChargeRate    float64
	NominalChargeRate float64
	LowChargeRate     float64
}

// DefaultPolicy is the formula set used by Recalculate.
var DefaultPolicy = PowerPolicy{
	BasePower:     10,
	CPUWeight:     0.3,
	HealthWeight:  0.15,
	TempWeight:    0.2,
	TempThreshold: 20,

	BaseCPU:          8,
	CPURetention:     0.7,
	CPUHealthWeight:  0.3,
	CPUTempWeight:    0.25,
	CPUTempThreshold: 25,
	StorageWeight:    0.2,

	MaxSolarInput:     25,
	ChargeScale:       0.1,
	HighChargeLevel:   80,
	LowChargeLevel:    20,
	HighChargeRate:    0.5,
	NominalChargeRate: 1.0,
	LowChargeRate:     1.5,
}

// Recalculate derives the dependent attributes (power draw, CPU/GPU load,
// battery level) from the independent ones using DefaultPolicy.
func Recalculate(t model.Telemetry) model.Telemetry {
	return RecalculateWith(DefaultPolicy, t)
}

// RecalculateWith evaluates the dependency chain with p. The steps run in a
// fixed order and each reads the outputs of the previous one. It is pure:
// no randomness, and the result is settled.
func RecalculateWith(p PowerPolicy, t model.Telemetry) model.Telemetry {
	wear := 100 - t.ComponentHealth

	power := p.BasePower +
		t.CPUGPUUsage*p.CPUWeight +
		wear*p.HealthWeight +
		math.Max(0, (t.Temperature-p.TempThreshold)*p.TempWeight)
	t.PowerConsumptionRate = math.Min(100, power)

	cpu := t.CPUGPUUsage*p.CPURetention +
		wear*p.CPUHealthWeight +
		math.Max(0, (t.Temperature-p.CPUTempThreshold)*p.CPUTempWeight) +
		t.DataStorageUsed*p.StorageWeight
	t.CPUGPUUsage = math.Min(100, math.Max(p.BaseCPU, cpu))

	solar := p.MaxSolarInput * (t.SolarPanelEfficiency / 100) * (t.BatteryHealth / 100)
	balance := solar - t.PowerConsumptionRate
	t.BatteryLevel = model.FieldBatteryLevel.Range().Clamp(
		t.BatteryLevel + balance*p.chargeRate(t.BatteryLevel)*p.ChargeScale,
	)

	return t.Settle()
}

func (p PowerPolicy) chargeRate(level float64) float64 {
	switch {
	case level > p.HighChargeLevel:
		return p.HighChargeRate
	case level < p.LowChargeLevel:
		return p.LowChargeRate
	default:
		return p.NominalChargeRate
	}
}

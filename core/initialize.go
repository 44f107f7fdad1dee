package core

import (
	"math"

	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// Healthy defaults for the independent attributes of a fresh session.
const (
	InitialBatteryHealth        = 90.0
	InitialSolarPanelEfficiency = 85.0
	InitialTemperature          = 25.0
	InitialSignalStrength       = 80.0
	InitialComponentHealth      = 90.0
)

// Initialize returns the starting vector of a session. The dependent
// attributes come from one-shot seed formulas rather than Recalculate, since
// there is no previous state to decay from; storage use and debris risk start
// at small random values.
func Initialize(r Rand) model.Telemetry {
	t := model.Telemetry{
		BatteryHealth:        InitialBatteryHealth,
		SolarPanelEfficiency: InitialSolarPanelEfficiency,
		Temperature:          InitialTemperature,
		SignalStrength:       InitialSignalStrength,
		ComponentHealth:      InitialComponentHealth,
	}
	wear := 100 - t.ComponentHealth

	t.BatteryLevel = math.Min(100, t.SolarPanelEfficiency-(100-t.BatteryHealth)*0.3)
	t.PowerConsumptionRate = math.Max(5, wear*0.2+t.Temperature*0.1)
	t.CPUGPUUsage = math.Max(10, wear*0.5+t.Temperature*0.3)
	t.DataStorageUsed = uniform(r, 10, 30)
	t.DebrisRiskLevel = uniform(r, 1, 3)

	return t.Settle()
}

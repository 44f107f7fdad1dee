package model

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
)

func randomTelemetry(r *rand.Rand) Telemetry {
	var t Telemetry
	for _, f := range Fields() {
		// Deliberately overshoot the declared ranges on both sides.
		t = t.With(f, r.Float64()*400-200)
	}
	return t
}

func TestClampIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		v := randomTelemetry(r)
		once := v.Clamp()
		if twice := once.Clamp(); twice != once {
			t.Fatalf("Clamp not idempotent: %+v vs %+v", once, twice)
		}
		if !once.InRange() {
			t.Fatalf("clamped vector out of range: %+v", once)
		}
		settled := v.Settle()
		if again := settled.Settle(); again != settled {
			t.Fatalf("Settle not idempotent: %+v vs %+v", settled, again)
		}
	}
}

func TestClampKeepsBoundaryValues(t *testing.T) {
	for _, f := range Fields() {
		r := f.Range()
		for _, v := range []float64{r.Min, r.Max} {
			got := Telemetry{}.With(f, v).Clamp().Get(f)
			if got != v {
				t.Fatalf("%s: Clamp(%v) = %v, want unchanged", f, v, got)
			}
		}
	}
}

func TestTemperatureRange(t *testing.T) {
	v := Telemetry{Temperature: -75}.Clamp()
	if v.Temperature != -50 {
		t.Fatalf("Temperature clamped to %v, want -50", v.Temperature)
	}
	v = Telemetry{Temperature: 140}.Clamp()
	if v.Temperature != 100 {
		t.Fatalf("Temperature clamped to %v, want 100", v.Temperature)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{12.346, 12.35},
		{12.344, 12.34},
		{-3.006, -3.01},
		{0.29, 0.29},
		{100, 100},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRound2NeverYieldsNegativeZero(t *testing.T) {
	for _, v := range []float64{-0.004, -0.001, -0.0049, math.Copysign(0, -1)} {
		if got := Round2(v); got != 0 || math.Signbit(got) {
			t.Fatalf("Round2(%v) = %v (signbit %v), want +0", v, got, math.Signbit(got))
		}
	}

	settled := Telemetry{Temperature: -0.004}.Settle()
	if math.Signbit(settled.Temperature) {
		t.Fatalf("Settle kept a negative zero temperature")
	}
	raw, err := json.Marshal(settled)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(raw), "-0") {
		t.Fatalf("settled vector serialised a negative zero: %s", raw)
	}
}

func TestFieldOrderAndNames(t *testing.T) {
	want := []string{
		"Battery_Level", "Battery_Health", "Signal_Strength", "Power_Consumption_Rate",
		"Component_Health", "CPU_GPU_Usage", "Solar_Panel_Efficiency", "Temperature",
		"Data_Storage_Used", "Debris_Risk_Level",
	}
	fields := Fields()
	if len(fields) != len(want) {
		t.Fatalf("Fields() len = %d, want %d", len(fields), len(want))
	}
	for i, f := range fields {
		if f.String() != want[i] {
			t.Fatalf("field %d = %s, want %s", i, f, want[i])
		}
		parsed, err := ParseField(want[i])
		if err != nil || parsed != f {
			t.Fatalf("ParseField(%q) = %v, %v", want[i], parsed, err)
		}
	}
	if _, err := ParseField("Fuel_Level"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("ParseField unknown error = %v, want ErrUnknownField", err)
	}
}

func TestJSONUsesFlatFieldNames(t *testing.T) {
	v := Telemetry{BatteryLevel: 76.5, Temperature: 25, DebrisRiskLevel: 2.25}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if len(m) != NumFields {
		t.Fatalf("wire map has %d keys, want %d", len(m), NumFields)
	}
	if m["Battery_Level"] != 76.5 || m["Debris_Risk_Level"] != 2.25 {
		t.Fatalf("unexpected wire values: %v", m)
	}

	var back Telemetry
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal Telemetry: %v", err)
	}
	if back != v {
		t.Fatalf("decoded %+v, want %+v", back, v)
	}
}

func TestUnmarshalRejectsPartialVector(t *testing.T) {
	var v Telemetry
	err := json.Unmarshal([]byte(`{"Battery_Level": 10}`), &v)
	if err == nil {
		t.Fatalf("expected error for partial vector")
	}
	err = json.Unmarshal([]byte(`{"Battery_Level": 10, "Warp_Core": 1}`), &v)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestValuesRoundTrip(t *testing.T) {
	v := Telemetry{BatteryLevel: 1, BatteryHealth: 2, SignalStrength: 3, PowerConsumptionRate: 4,
		ComponentHealth: 5, CPUGPUUsage: 6, SolarPanelEfficiency: 7, Temperature: 8,
		DataStorageUsed: 9, DebrisRiskLevel: 10}
	vals := v.Values()
	for i, x := range vals {
		if x != float64(i+1) {
			t.Fatalf("Values()[%d] = %v, want %d", i, x, i+1)
		}
	}
	back, err := FromValues(vals)
	if err != nil || back != v {
		t.Fatalf("FromValues = %+v, %v", back, err)
	}
	if _, err := FromValues(vals[:9]); err == nil {
		t.Fatalf("expected error for short value slice")
	}
}

func TestFieldTextEncoding(t *testing.T) {
	data, err := json.Marshal(struct {
		F Field `json:"f"`
	}{F: FieldCPUGPUUsage})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"f":"CPU_GPU_Usage"}` {
		t.Fatalf("encoded field = %s", data)
	}

	var back struct {
		F Field `json:"f"`
	}
	if err := json.Unmarshal(data, &back); err != nil || back.F != FieldCPUGPUUsage {
		t.Fatalf("round trip = %v, %v", back.F, err)
	}
	if err := json.Unmarshal([]byte(`{"f":"Warp_Drive"}`), &back); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

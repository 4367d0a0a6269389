package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartGeneration()
		pc.StartPhase(PhaseReset)
		time.Sleep(100 * time.Microsecond)
		for tick := 0; tick < 3; tick++ {
			pc.StartPhase(PhaseAct)
			time.Sleep(50 * time.Microsecond)
			pc.StartPhase(PhasePhysics)
			pc.Tick()
		}
		pc.EndGeneration()
	}

	stats := pc.Stats()

	if stats.AvgGeneration <= 0 {
		t.Error("expected positive average generation duration")
	}
	if _, ok := stats.PhaseAvg[PhaseReset]; !ok {
		t.Error("expected reset phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseAct]; !ok {
		t.Error("expected act phase to be tracked")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhasesAccumulate(t *testing.T) {
	pc := NewPerfCollector(1)
	pc.StartGeneration()
	for i := 0; i < 4; i++ {
		pc.StartPhase(PhaseAct)
		time.Sleep(200 * time.Microsecond)
		pc.StartPhase(PhasePhysics)
	}
	sample := pc.EndGeneration()
	if sample.Phases[PhaseAct] < 800*time.Microsecond {
		t.Errorf("act phase = %v, want >= 800us accumulated", sample.Phases[PhaseAct])
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartGeneration()
		pc.StartPhase(PhaseAdvance)
		pc.Tick()
		pc.EndGeneration()
	}

	stats := pc.Stats()
	if stats.AvgGeneration <= 0 {
		t.Error("expected positive average generation duration after window filled")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartGeneration()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(100 * time.Microsecond)
		pc.EndGeneration()
	}

	stats := pc.Stats()
	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgGeneration != 0 {
		t.Error("expected zero avg generation duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	m.Observe(GenerationStats{Generation: 4, Best: 2, Mean: 1, Worst: -1, Reported: 8, Rejected: 1, ElapsedMS: 12})

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
		if f.GetName() == "neuroevo_generation" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 4 {
				t.Errorf("neuroevo_generation = %v, want 4", v)
			}
		}
	}
	for _, name := range []string{"neuroevo_generation", "neuroevo_fitness", "neuroevo_generations_total", "neuroevo_fitness_reports_total", "neuroevo_generation_seconds"} {
		if !got[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `neuroevo_fitness{stat="best"} 2`) {
		t.Errorf("exposition missing best fitness:\n%s", body)
	}
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.Observe(GenerationStats{})
}

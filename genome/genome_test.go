package genome

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/pthm-cable/neuroevo/neural"
)

func testTopology() *neural.Topology {
	return neural.Descriptor{
		InputDim: 3,
		Layers: []neural.LayerSpec{
			{Units: 4, Activation: neural.Tanh},
			{Units: 2, Activation: neural.Identity},
		},
	}.MustBuild()
}

func TestCreateDeterministic(t *testing.T) {
	topo := testTopology()
	for _, dist := range []string{InitUniform, InitGaussian, InitXavier} {
		t.Run(dist, func(t *testing.T) {
			init := DefaultInit()
			init.Distribution = dist

			a := Create(topo, 7, init, NewIDSource())
			b := Create(topo, 7, init, NewIDSource())
			if a.Len() != topo.ParamCount() {
				t.Fatalf("Len() = %d, want %d", a.Len(), topo.ParamCount())
			}
			for i := range a.Parameters {
				if a.Parameters[i] != b.Parameters[i] {
					t.Fatalf("param %d differs: %v vs %v", i, a.Parameters[i], b.Parameters[i])
				}
			}
			if a.ParentIDs != nil {
				t.Error("founder should have no parents")
			}
			if a.HasFitness() {
				t.Error("new genome should have unassigned fitness")
			}
		})
	}
}

func TestCreateUniformBounds(t *testing.T) {
	topo := testTopology()
	init := InitParams{Distribution: InitUniform, Min: -0.25, Max: 0.75}
	g := Create(topo, 1, init, NewIDSource())
	for i, v := range g.Parameters {
		if v < -0.25 || v > 0.75 {
			t.Errorf("param %d = %v outside [-0.25, 0.75]", i, v)
		}
	}
}

func TestXavierZeroBiases(t *testing.T) {
	topo := testTopology()
	g := Create(topo, 3, InitParams{Distribution: InitXavier}, NewIDSource())
	for li := 0; li < topo.NumLayers(); li++ {
		l := topo.Layer(li)
		for i := l.BiasOffset; i < l.BiasOffset+l.Units; i++ {
			if g.Parameters[i] != 0 {
				t.Errorf("bias %d = %v, want 0", i, g.Parameters[i])
			}
		}
	}
}

func TestInitValidate(t *testing.T) {
	tests := []struct {
		name    string
		init    InitParams
		wantErr bool
	}{
		{"default", DefaultInit(), false},
		{"inverted bounds", InitParams{Distribution: InitUniform, Min: 1, Max: -1}, true},
		{"negative scale", InitParams{Distribution: InitGaussian, Scale: -1}, true},
		{"xavier", InitParams{Distribution: InitXavier}, false},
		{"unknown", InitParams{Distribution: "cauchy"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.init.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIDsMonotonic(t *testing.T) {
	ids := NewIDSource()
	topo := testTopology()
	g := Create(topo, 1, DefaultInit(), ids)
	c := g.Clone(ids)
	a, b, err := g.Crossover(c, rand.New(rand.NewSource(42)), ids)
	if err != nil {
		t.Fatal(err)
	}
	if !(g.ID < c.ID && c.ID < a.ID && a.ID < b.ID) {
		t.Errorf("ids not increasing: %d %d %d %d", g.ID, c.ID, a.ID, b.ID)
	}
}

func TestClone(t *testing.T) {
	ids := NewIDSource()
	g := Create(testTopology(), 42, DefaultInit(), ids)
	if err := g.SetFitness(3); err != nil {
		t.Fatal(err)
	}

	c := g.Clone(ids)
	if c.ID == g.ID {
		t.Error("clone should get a new id")
	}
	if c.HasFitness() {
		t.Error("clone should have unassigned fitness")
	}
	if len(c.ParentIDs) != 2 || c.ParentIDs[0] != g.ID {
		t.Errorf("clone parents = %v, want [%d %d]", c.ParentIDs, g.ID, g.ID)
	}
	for i := range g.Parameters {
		if c.Parameters[i] != g.Parameters[i] {
			t.Fatalf("param %d differs", i)
		}
	}

	c.Parameters[0] = 999
	if g.Parameters[0] == 999 {
		t.Error("clone is not independent")
	}
}

func TestFitnessSlot(t *testing.T) {
	g := FromParameters([]float64{1, 2}, NewIDSource())
	if _, ok := g.Fitness(); ok {
		t.Fatal("fitness should start unassigned")
	}
	if err := g.SetFitness(-2.5); err != nil {
		t.Fatal(err)
	}
	if v, ok := g.Fitness(); !ok || v != -2.5 {
		t.Errorf("Fitness() = %v, %v; want -2.5, true", v, ok)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := g.SetFitness(bad); err == nil {
			t.Errorf("SetFitness(%v) should fail", bad)
		}
	}
	if v, _ := g.Fitness(); v != -2.5 {
		t.Errorf("rejected write changed fitness to %v", v)
	}
	g.ResetFitness()
	if g.HasFitness() {
		t.Error("ResetFitness did not clear the slot")
	}
}

func TestFitnessConcurrentWrites(t *testing.T) {
	g := FromParameters([]float64{0}, NewIDSource())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			g.SetFitness(v)
			g.Fitness()
		}(float64(i))
	}
	wg.Wait()

	v, ok := g.Fitness()
	if !ok || v < 0 || v > 15 || v != math.Trunc(v) {
		t.Errorf("Fitness() = %v, %v after concurrent writes", v, ok)
	}
}

func TestMutateZeroRate(t *testing.T) {
	g := Create(testTopology(), 42, DefaultInit(), NewIDSource())
	before := append([]float64(nil), g.Parameters...)

	delta := g.Mutate(MutationParams{Rate: 0, Strength: 1}, rand.New(rand.NewSource(1)))
	if delta != 0 {
		t.Errorf("delta = %v, want 0", delta)
	}
	for i := range before {
		if g.Parameters[i] != before[i] {
			t.Fatalf("param %d changed with rate 0", i)
		}
	}
}

func TestMutateFullRate(t *testing.T) {
	g := Create(testTopology(), 42, DefaultInit(), NewIDSource())
	before := append([]float64(nil), g.Parameters...)

	delta := g.Mutate(MutationParams{Rate: 1, Strength: 0.1}, rand.New(rand.NewSource(1)))
	if delta <= 0 {
		t.Errorf("delta = %v, want > 0", delta)
	}
	changed := 0
	for i := range before {
		if g.Parameters[i] != before[i] {
			changed++
		}
	}
	if changed != len(before) {
		t.Errorf("%d of %d parameters changed with rate 1", changed, len(before))
	}
}

func TestMutateReset(t *testing.T) {
	g := FromParameters(make([]float64, 20), NewIDSource())
	p := MutationParams{ResetChance: 1, ResetMaxFraction: 0.5, ResetMin: 5, ResetMax: 6}
	g.Mutate(p, rand.New(rand.NewSource(42)))

	reset := 0
	for _, v := range g.Parameters {
		switch {
		case v == 0:
		case v >= 5 && v <= 6:
			reset++
		default:
			t.Fatalf("unexpected value %v", v)
		}
	}
	if reset < 1 || reset > 10 {
		t.Errorf("reset %d parameters, want 1..10", reset)
	}
}

func TestCrossoverPointwiseSelection(t *testing.T) {
	ids := NewIDSource()
	topo := testTopology()
	a := Create(topo, 1, DefaultInit(), ids)
	b := Create(topo, 2, DefaultInit(), ids)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		c1, c2, err := a.Crossover(b, rng, ids)
		if err != nil {
			t.Fatal(err)
		}
		for i := range a.Parameters {
			x, y := a.Parameters[i], b.Parameters[i]
			if !((c1.Parameters[i] == x && c2.Parameters[i] == y) || (c1.Parameters[i] == y && c2.Parameters[i] == x)) {
				t.Fatalf("index %d: children (%v, %v) not a permutation of parents (%v, %v)",
					i, c1.Parameters[i], c2.Parameters[i], x, y)
			}
		}
		if c1.ParentIDs[0] != a.ID || c1.ParentIDs[1] != b.ID {
			t.Errorf("child parents = %v", c1.ParentIDs)
		}
	}
}

func TestCrossoverTopologyMismatch(t *testing.T) {
	ids := NewIDSource()
	a := FromParameters([]float64{1, 2, 3}, ids)
	b := FromParameters([]float64{1, 2}, ids)
	rng := rand.New(rand.NewSource(42))

	if _, _, err := a.Crossover(b, rng, ids); !errors.Is(err, ErrTopologyMismatch) {
		t.Errorf("Crossover err = %v, want ErrTopologyMismatch", err)
	}
	if _, _, err := a.CrossoverSBX(b, 15, 1, rng, ids); !errors.Is(err, ErrTopologyMismatch) {
		t.Errorf("CrossoverSBX err = %v, want ErrTopologyMismatch", err)
	}
}

func TestSBXPreservesMidpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		x1, x2 := rng.NormFloat64(), rng.NormFloat64()
		c1, c2 := sbxPair(x1, x2, rng.Float64(), 15)
		if math.Abs((c1+c2)-(x1+x2)) > 1e-9 {
			t.Fatalf("sbx(%v, %v) = (%v, %v): midpoint moved", x1, x2, c1, c2)
		}
	}
	if c1, c2 := sbxPair(0.3, 0.3, 0.9, 2); c1 != 0.3 || c2 != 0.3 {
		t.Errorf("identical parents produced (%v, %v)", c1, c2)
	}
}

func TestRecombineClamp(t *testing.T) {
	ids := NewIDSource()
	a := FromParameters([]float64{-5, 5, 0.5}, ids)
	b := FromParameters([]float64{5, -5, -0.5}, ids)
	p := CrossoverParams{Mode: CrossoverSBX, Eta: 2, GeneRate: 1, Clamp: true, ClampMin: -1, ClampMax: 1}

	c1, c2, err := a.Recombine(b, p, rand.New(rand.NewSource(42)), ids)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []*Genome{c1, c2} {
		for i, v := range c.Parameters {
			if v < -1 || v > 1 {
				t.Errorf("child %d param %d = %v outside clamp range", c.ID, i, v)
			}
		}
	}

	if _, _, err := a.Recombine(b, CrossoverParams{Mode: "blend"}, rand.New(rand.NewSource(1)), ids); err == nil {
		t.Error("unknown mode should fail")
	}
}

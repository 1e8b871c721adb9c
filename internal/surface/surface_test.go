package surface

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

func pt(tte, strike, iv float64) models.ContractPoint {
	return models.ContractPoint{
		TimeToExpiration:  tte,
		Strike:            strike,
		Moneyness:         strike / 100,
		ImpliedVolatility: iv,
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	for _, mode := range []Mode{ModeStrike, ModeMoneyness} {
		_, err := Build(nil, mode)
		if !errors.Is(err, errors.ErrEmptyInput) {
			t.Errorf("mode %s: expected ErrEmptyInput, got %v", mode, err)
		}
	}
}

func TestBuild_SingleExpiration(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.25, 90, 0.30),
		pt(0.25, 100, 0.25),
		pt(0.25, 110, 0.22),
	}
	_, err := Build(points, ModeStrike)
	if !errors.Is(err, errors.ErrDegenerateRange) {
		t.Fatalf("expected ErrDegenerateRange, got %v", err)
	}
	var dre *errors.DegenerateRangeError
	if !errors.As(err, &dre) {
		t.Fatalf("expected *DegenerateRangeError, got %T", err)
	}
	if dre.Axis != "time_to_expiration" || dre.Distinct != 1 {
		t.Errorf("unexpected error detail: axis=%q distinct=%d", dre.Axis, dre.Distinct)
	}
}

func TestBuild_SingleStrike(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.30),
		pt(0.5, 100, 0.25),
		pt(1.0, 100, 0.22),
	}
	_, err := Build(points, ModeMoneyness)
	var dre *errors.DegenerateRangeError
	if !errors.As(err, &dre) {
		t.Fatalf("expected *DegenerateRangeError, got %v", err)
	}
	if dre.Axis != "moneyness" {
		t.Errorf("expected moneyness axis, got %q", dre.Axis)
	}
}

func TestBuild_CollinearPoints(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.30),
		pt(0.2, 110, 0.25),
		pt(0.3, 120, 0.22),
		pt(0.4, 130, 0.21),
	}
	_, err := Build(points, ModeStrike)
	if !errors.Is(err, errors.ErrDegenerateRange) {
		t.Fatalf("expected ErrDegenerateRange, got %v", err)
	}
	if !strings.Contains(err.Error(), "collinear") {
		t.Errorf("expected collinear message, got %q", err.Error())
	}
}

func TestBuild_NonFiniteInput(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.20),
		pt(0.5, 100, math.NaN()),
		pt(0.1, 120, 0.22),
	}
	if _, err := Build(points, ModeStrike); err == nil {
		t.Fatal("expected error for NaN implied volatility")
	}
}

func TestBuild_ThreePointScenario(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.20),
		pt(0.5, 100, 0.25),
		pt(0.1, 120, 0.22),
	}
	grid, err := Build(points, ModeStrike)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	n := DefaultResolution
	if v, ok := grid.At(0, 0); !ok || math.Abs(v-0.20) > 1e-9 {
		t.Errorf("site (0.1, 100): expected 0.20, got %v (defined=%v)", v, ok)
	}
	if v, ok := grid.At(n-1, 0); !ok || math.Abs(v-0.25) > 1e-9 {
		t.Errorf("site (0.5, 100): expected 0.25, got %v (defined=%v)", v, ok)
	}
	if v, ok := grid.At(0, n-1); !ok || math.Abs(v-0.22) > 1e-9 {
		t.Errorf("site (0.1, 120): expected 0.22, got %v (defined=%v)", v, ok)
	}

	// The hull is the triangle u + v <= 1 in unit coordinates.
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			u := (grid.XAxis[i] - 0.1) / 0.4
			v := (grid.YAxis[j] - 100) / 20
			switch {
			case u+v > 1+1e-9:
				if grid.Defined(i, j) {
					t.Fatalf("site (%d,%d) outside hull was extrapolated to %v", i, j, grid.Z[j][i])
				}
			case u+v < 1-1e-9:
				if !grid.Defined(i, j) {
					t.Fatalf("site (%d,%d) inside hull is undefined", i, j)
				}
			}
		}
	}
}

func TestBuild_LinearSurfaceIsReproduced(t *testing.T) {
	linear := func(tte, strike float64) float64 {
		return 0.2 + 0.1*tte + 0.001*(strike-100)
	}
	var points []models.ContractPoint
	for _, tte := range []float64{0.1, 0.2, 0.35, 0.5, 0.75, 1.0} {
		for _, k := range []float64{90, 95, 100, 105, 110, 120, 130} {
			points = append(points, pt(tte, k, linear(tte, k)))
		}
	}
	// interior scatter
	points = append(points, pt(0.42, 101.5, linear(0.42, 101.5)), pt(0.81, 117.25, linear(0.81, 117.25)))

	grid, err := Build(points, ModeStrike)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c := grid.Coverage(); c != 1 {
		t.Errorf("expected full coverage of rectangular hull, got %.4f", c)
	}
	for j, k := range grid.YAxis {
		for i, tte := range grid.XAxis {
			v, ok := grid.At(i, j)
			if !ok {
				continue
			}
			if want := linear(tte, k); math.Abs(v-want) > 1e-4 {
				t.Fatalf("site (%v, %v): expected %v, got %v", tte, k, want, v)
			}
		}
	}
}

func TestBuild_DuplicateSitesAreAveraged(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.20),
		pt(0.1, 100, 0.30),
		pt(0.5, 100, 0.25),
		pt(0.1, 120, 0.22),
	}
	grid, err := Build(points, ModeStrike)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if v, _ := grid.At(0, 0); math.Abs(v-0.25) > 1e-9 {
		t.Errorf("expected duplicate observations to average to 0.25, got %v", v)
	}
}

func TestBuild_ZeroFloorOnOvershoot(t *testing.T) {
	// A sharp spike next to zero-valued neighbours makes the cubic undershoot.
	var points []models.ContractPoint
	for _, tte := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		for _, k := range []float64{90, 95, 100, 105, 110} {
			iv := 0.0
			if tte == 0.3 && k == 100 {
				iv = 3.0
			}
			points = append(points, pt(tte, k, iv))
		}
	}
	grid, err := Build(points, ModeStrike)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for j := range grid.Z {
		for i := range grid.Z[j] {
			if v, ok := grid.At(i, j); ok && v < 0 {
				t.Fatalf("negative value %v at (%d,%d)", v, i, j)
			}
		}
	}
	max, ok := grid.MaxDefined()
	if !ok || max < 2.5 {
		t.Errorf("expected spike to survive interpolation, max=%v", max)
	}
}

func TestBuilder_Resolution(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.20),
		pt(0.5, 100, 0.25),
		pt(0.1, 120, 0.22),
		pt(0.5, 120, 0.24),
	}
	grid, err := NewBuilder(WithResolution(25)).Build(points, ModeStrike)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(grid.XAxis) != 25 || len(grid.YAxis) != 25 || len(grid.Z) != 25 || len(grid.Z[0]) != 25 {
		t.Errorf("unexpected shape: x=%d y=%d z=%dx%d", len(grid.XAxis), len(grid.YAxis), len(grid.Z), len(grid.Z[0]))
	}
	if NewBuilder(WithResolution(1)).Resolution() != DefaultResolution {
		t.Error("resolution below 2 should be ignored")
	}
}

func TestGrid_JSONEncodesGapsAsNull(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 100, 0.20),
		pt(0.5, 100, 0.25),
		pt(0.1, 120, 0.22),
	}
	grid, err := NewBuilder(WithResolution(4)).Build(points, ModeMoneyness)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	data, err := json.Marshal(grid)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), "null") {
		t.Errorf("expected null for uncovered sites: %s", data)
	}
	if !strings.Contains(string(data), `"mode":"moneyness"`) {
		t.Errorf("expected mode label: %s", data)
	}

	var decoded Grid
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Defined(3, 3) || !decoded.Defined(0, 0) {
		t.Error("coverage mask lost in round trip")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"strike":     ModeStrike,
		"Strike":     ModeStrike,
		" MONEYNESS": ModeMoneyness,
		"":           ModeStrike,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("delta"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func BenchmarkBuild(b *testing.B) {
	var points []models.ContractPoint
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for e := 1; e <= 20; e++ {
		expiry := base.AddDate(0, 0, 7*e)
		for k := 300.0; k <= 700; k += 5 {
			p, _ := models.NewContractPoint(expiry, base, k, 500, 1, 1.2, 0.15+math.Abs(k-500)/2000)
			points = append(points, p)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(points, ModeStrike); err != nil {
			b.Fatal(err)
		}
	}
}

func TestBaryEps(t *testing.T) {
	if want := 100 * (math.Nextafter(1, 2) - 1); baryEps != want {
		t.Errorf("baryEps = %g, want %g", baryEps, want)
	}
}

func TestBuild_HullEdgeSitesAreDefined(t *testing.T) {
	points := []models.ContractPoint{
		pt(0.1, 80, 0.30), pt(0.1, 120, 0.25),
		pt(1.0, 80, 0.28), pt(1.0, 120, 0.22),
		pt(0.5, 100, 0.24),
	}
	grid, err := NewBuilder(WithResolution(7)).Build(points, ModeStrike)
	if err != nil {
		t.Fatal(err)
	}
	for i := range grid.XAxis {
		for j := range grid.YAxis {
			if !grid.Defined(i, j) {
				t.Errorf("site (%g, %g) on or inside the hull is undefined", grid.XAxis[i], grid.YAxis[j])
			}
		}
	}
}

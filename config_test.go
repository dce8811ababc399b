package rendezvous

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RDV_CONFIG", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("defaults differ:\n%+v\n%+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	conf := `snapshot_capacity = 500
[solver]
max_iterations = 30
[sweep]
workers = 4
`
	if err := os.WriteFile(filepath.Join(dir, "conf.toml"), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RDV_CONFIG", dir)
	t.Setenv("RDV_SOLVER_POS_TOL", "0.5")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SnapshotCapacity != 500 || cfg.Solver.MaxIterations != 30 || cfg.Sweep.Workers != 4 {
		t.Fatalf("file settings ignored: %+v", cfg)
	}
	if cfg.Solver.PosTol != 0.5 {
		t.Fatalf("environment override ignored: %f", cfg.Solver.PosTol)
	}
	if cfg.Solver.MaxHalvings != 10 || cfg.SnapshotInterval != 1 {
		t.Fatal("defaults lost when merging the file")
	}

	// A missing conf.toml in RDV_CONFIG is not an error.
	t.Setenv("RDV_CONFIG", t.TempDir())
	if _, err := LoadConfig(""); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("RDV_CONFIG", "")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for a missing file, got %v", err)
	}
	t.Setenv("RDV_SNAPSHOT_INTERVAL", "-1")
	_, err := LoadConfig("")
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "snapshot_interval") {
		t.Fatalf("expected a snapshot_interval error, got %v", err)
	}
}

const geoJSON = `{
	"metadata": {
		"earth_mu": 3.986004418e14,
		"geo_mean_motion": 7.292115e-5,
		"geo_radius_m": 42164000,
		"geo_velocity_ms": 3074.66,
		"epoch": "2026-03-20T12:00:00Z"
	},
	"chase": {"position_eci_m": [42164000, 1000, 0], "velocity_eci_ms": [0, 3074.66, 0]},
	"target": {"name": "sat", "position_eci_m": [42164000, 0, 0], "velocity_eci_ms": [0, 3074.66, 0]},
	"burn_budget_ms": 25
}`

func TestReadInitialConditions(t *testing.T) {
	ic, err := ReadInitialConditions(strings.NewReader(geoJSON), "json")
	if err != nil {
		t.Fatal(err)
	}
	if ic.BurnBudget != 25 || ic.Target.Name != "sat" || ic.Metadata.GeoRadius != 42164e3 {
		t.Fatalf("unexpected initial conditions %+v", ic)
	}
	chase, err := ic.Chase.State()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(chase.R.Slice(), []float64{42164e3, 1000, 0}) {
		t.Fatalf("chase position %s", chase.R)
	}
	epoch, _ := ic.Epoch()
	if !epoch.Equal(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("epoch %s", epoch)
	}
}

func TestReadInitialConditionsMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"syntax":        `{"metadata": `,
		"no mu":         strings.Replace(geoJSON, `"earth_mu": 3.986004418e14,`, ``, 1),
		"short vector":  strings.Replace(geoJSON, `[42164000, 1000, 0]`, `[42164000, 1000]`, 1),
		"zero velocity": strings.Replace(geoJSON, `[0, 3074.66, 0]`, `[0, 0, 0]`, 1),
		"negative fuel": strings.Replace(geoJSON, `"burn_budget_ms": 25`, `"burn_budget_ms": -1`, 1),
		"bad epoch":     strings.Replace(geoJSON, `2026-03-20T12:00:00Z`, `yesterday`, 1),
		"text vector":   strings.Replace(geoJSON, `[42164000, 0, 0]`, `"here"`, 1),
	} {
		if _, err := ReadInitialConditions(strings.NewReader(doc), "json"); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadInitialConditions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.json")
	if err := os.WriteFile(path, []byte(geoJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadInitialConditions(path); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadInitialConditions(path + ".missing"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewGEOInitialConditions(t *testing.T) {
	ic := NewGEOInitialConditions(1, DefaultBurnBudget)
	if err := ic.Validate(); err != nil {
		t.Fatal(err)
	}
	chase, _ := ic.Chase.State()
	target, _ := ic.Target.State()
	if !scalar.EqualWithinRel(Range(chase, target), 2*GEORadius*Deg2rad(0.5)*(1-Deg2rad(0.5)*Deg2rad(0.5)/6), 1e-9) {
		t.Fatalf("range %f", Range(chase, target))
	}
	if !scalar.EqualWithinRel(ic.Metadata.GeoVelocity, 3074.66, 1e-4) {
		t.Fatalf("GEO velocity %f", ic.Metadata.GeoVelocity)
	}
}

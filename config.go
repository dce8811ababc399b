package rendezvous

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every configuration and construction input error.
var ErrInvalidConfig = errors.New("invalid configuration")

// SolverConfig configures the differential corrector.
type SolverConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	PosTol        float64 `mapstructure:"pos_tol"`
	MaxHalvings   int     `mapstructure:"max_halvings"`
	PivotTol      float64 `mapstructure:"pivot_tol"`
}

// SweepConfig configures the time of flight sweep.
type SweepConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	MaxDV         float64 `mapstructure:"max_dv"`
	Workers       int     `mapstructure:"workers"`
}

// PreviewConfig bounds burn previews.
type PreviewConfig struct {
	MaxSamples int `mapstructure:"max_samples"`
}

// Config holds the engine settings.
type Config struct {
	SnapshotInterval float64       `mapstructure:"snapshot_interval"`
	SnapshotCapacity int           `mapstructure:"snapshot_capacity"`
	TrailInterval    float64       `mapstructure:"trail_interval"`
	TrailCapacity    int           `mapstructure:"trail_capacity"`
	MaxStep          float64       `mapstructure:"max_step"`
	MaxStepChunks    int           `mapstructure:"max_step_chunks"`
	Solver           SolverConfig  `mapstructure:"solver"`
	Sweep            SweepConfig   `mapstructure:"sweep"`
	Preview          PreviewConfig `mapstructure:"preview"`
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval: 1,
		SnapshotCapacity: 100000,
		TrailInterval:    60,
		TrailCapacity:    10000,
		MaxStep:          DefaultMaxStep,
		MaxStepChunks:    1000000,
		Solver:           SolverConfig{MaxIterations: 50, PosTol: 1, MaxHalvings: 10, PivotTol: 1e-14},
		Sweep:            SweepConfig{MaxIterations: 20, MaxDV: 500, Workers: 1},
		Preview:          PreviewConfig{MaxSamples: 200000},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("snapshot_interval", d.SnapshotInterval)
	v.SetDefault("snapshot_capacity", d.SnapshotCapacity)
	v.SetDefault("trail_interval", d.TrailInterval)
	v.SetDefault("trail_capacity", d.TrailCapacity)
	v.SetDefault("max_step", d.MaxStep)
	v.SetDefault("max_step_chunks", d.MaxStepChunks)
	v.SetDefault("solver.max_iterations", d.Solver.MaxIterations)
	v.SetDefault("solver.pos_tol", d.Solver.PosTol)
	v.SetDefault("solver.max_halvings", d.Solver.MaxHalvings)
	v.SetDefault("solver.pivot_tol", d.Solver.PivotTol)
	v.SetDefault("sweep.max_iterations", d.Sweep.MaxIterations)
	v.SetDefault("sweep.max_dv", d.Sweep.MaxDV)
	v.SetDefault("sweep.workers", d.Sweep.Workers)
	v.SetDefault("preview.max_samples", d.Preview.MaxSamples)
}

// LoadConfig loads the engine settings. If path is empty, conf.toml is looked up in the directory
// set by the RDV_CONFIG environment variable, and the defaults are used if there is no such file.
// Any key may be overridden with an RDV_ prefixed environment variable, e.g. RDV_SOLVER_POS_TOL.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RDV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		}
	} else if dir := os.Getenv("RDV_CONFIG"); dir != "" {
		v.AddConfigPath(dir)
		v.SetConfigName("conf")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	check(c.SnapshotInterval > 0, "snapshot_interval must be positive")
	check(c.SnapshotCapacity > 0, "snapshot_capacity must be positive")
	check(c.TrailInterval > 0, "trail_interval must be positive")
	check(c.TrailCapacity > 0, "trail_capacity must be positive")
	check(c.MaxStep > 0, "max_step must be positive")
	check(c.MaxStepChunks > 0, "max_step_chunks must be positive")
	check(c.Solver.MaxIterations > 0, "solver.max_iterations must be positive")
	check(c.Solver.PosTol > 0, "solver.pos_tol must be positive")
	check(c.Solver.MaxHalvings >= 0, "solver.max_halvings may not be negative")
	check(c.Solver.PivotTol > 0, "solver.pivot_tol must be positive")
	check(c.Sweep.MaxIterations > 0, "sweep.max_iterations must be positive")
	check(c.Sweep.MaxDV > 0, "sweep.max_dv must be positive")
	check(c.Preview.MaxSamples > 0, "preview.max_samples must be positive")
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Metadata describes the scenario constants.
type Metadata struct {
	EarthMu       float64 `mapstructure:"earth_mu" json:"earth_mu"`
	GeoMeanMotion float64 `mapstructure:"geo_mean_motion" json:"geo_mean_motion"`
	GeoRadius     float64 `mapstructure:"geo_radius_m" json:"geo_radius_m"`
	GeoVelocity   float64 `mapstructure:"geo_velocity_ms" json:"geo_velocity_ms"`
	Scenario      string  `mapstructure:"scenario" json:"scenario,omitempty"`
	Epoch         string  `mapstructure:"epoch" json:"epoch,omitempty"`
}

// Vehicle is the initial state of one spacecraft.
type Vehicle struct {
	Name     string    `mapstructure:"name" json:"name,omitempty"`
	Position []float64 `mapstructure:"position_eci_m" json:"position_eci_m"`
	Velocity []float64 `mapstructure:"velocity_eci_ms" json:"velocity_eci_ms"`
}

// State returns the validated inertial state of this vehicle.
func (v Vehicle) State() (State, error) {
	R, err := Vec3FromSlice(v.Position)
	if err != nil {
		return State{}, fmt.Errorf("position_eci_m: %w", err)
	}
	V, err := Vec3FromSlice(v.Velocity)
	if err != nil {
		return State{}, fmt.Errorf("velocity_eci_ms: %w", err)
	}
	s := State{R: R, V: V}
	return s, s.Validate()
}

// InitialConditions is the construction input of a Session.
type InitialConditions struct {
	Metadata   Metadata `mapstructure:"metadata" json:"metadata"`
	Chase      Vehicle  `mapstructure:"chase" json:"chase"`
	Target     Vehicle  `mapstructure:"target" json:"target"`
	BurnBudget float64  `mapstructure:"burn_budget_ms" json:"burn_budget_ms"`
}

// LoadInitialConditions reads the initial conditions from a JSON, TOML or YAML file.
func LoadInitialConditions(path string) (InitialConditions, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return InitialConditions{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return decodeInitialConditions(v)
}

// ReadInitialConditions reads the initial conditions from r, format being "json", "toml" or "yaml".
func ReadInitialConditions(r io.Reader, format string) (InitialConditions, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return InitialConditions{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return decodeInitialConditions(v)
}

func decodeInitialConditions(v *viper.Viper) (InitialConditions, error) {
	var ic InitialConditions
	if err := v.Unmarshal(&ic); err != nil {
		return InitialConditions{}, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return ic, ic.Validate()
}

// Validate checks the initial conditions without building a session.
func (ic InitialConditions) Validate() error {
	mu := ic.Metadata.EarthMu
	if !(mu > 0) || math.IsInf(mu, 0) {
		return fmt.Errorf("%w: metadata.earth_mu must be positive, got %f", ErrInvalidConfig, mu)
	}
	if _, err := ic.Chase.State(); err != nil {
		return fmt.Errorf("%w: chase: %s", ErrInvalidConfig, err)
	}
	if _, err := ic.Target.State(); err != nil {
		return fmt.Errorf("%w: target: %s", ErrInvalidConfig, err)
	}
	if !(ic.BurnBudget >= 0) || math.IsInf(ic.BurnBudget, 0) {
		return fmt.Errorf("%w: burn_budget_ms must be a non negative number, got %f", ErrInvalidConfig, ic.BurnBudget)
	}
	if _, err := ic.Epoch(); err != nil {
		return err
	}
	return nil
}

// Epoch returns the scenario epoch, J2000 if unset.
func (ic InitialConditions) Epoch() (time.Time, error) {
	if ic.Metadata.Epoch == "" {
		return J2000, nil
	}
	epoch, err := time.Parse(time.RFC3339, ic.Metadata.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: metadata.epoch: %s", ErrInvalidConfig, err)
	}
	return epoch.UTC(), nil
}

const (
	// GEORadius is the geostationary orbit radius in meters.
	GEORadius = 42164e3
	// DefaultBurnBudget is the default Δv budget, in m/s.
	DefaultBurnBudget = 50.0
)

// NewGEOInitialConditions places the chase at longitude zero and the target separationDeg ahead on the GEO circle.
func NewGEOInitialConditions(separationDeg, budget float64) InitialConditions {
	chase := CircularState(GEORadius, 0, EarthMu)
	target := CircularState(GEORadius, Deg2rad(separationDeg), EarthMu)
	n := MeanMotion(EarthMu, GEORadius)
	return InitialConditions{
		Metadata: Metadata{
			EarthMu:       EarthMu,
			GeoMeanMotion: n,
			GeoRadius:     GEORadius,
			GeoVelocity:   n * GEORadius,
			Scenario:      fmt.Sprintf("geo-%.4fdeg", separationDeg),
		},
		Chase:      Vehicle{Name: "chase", Position: chase.R.Slice(), Velocity: chase.V.Slice()},
		Target:     Vehicle{Name: "target", Position: target.R.Slice(), Velocity: target.V.Slice()},
		BurnBudget: budget,
	}
}

package rendezvous

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// CgCatalog is a Cosmographia catalog.
type CgCatalog struct {
	Version string     `json:"version"`
	Name    string     `json:"name"`
	Items   []*CgItems `json:"items"`
}

// CgItems is one object of a Cosmographia catalog.
type CgItems struct {
	Class           string            `json:"class"`
	Name            string            `json:"name"`
	StartTime       string            `json:"startTime"`
	EndTime         string            `json:"endTime"`
	Center          string            `json:"center"`
	TrajectoryFrame string            `json:"trajectoryFrame"`
	Trajectory      *CgTrajectory     `json:"trajectory,omitempty"`
	Label           *CgLabel          `json:"label,omitempty"`
	TrajectoryPlot  *CgTrajectoryPlot `json:"trajectoryPlot,omitempty"`
}

// CgTrajectory definition.
type CgTrajectory struct {
	Type   string `json:"type,omitempty"`
	Source string `json:"source,omitempty"`
}

// Validate validates a CgTrajectory.
func (t *CgTrajectory) Validate() error {
	if t.Type != "InterpolatedStates" || !strings.HasSuffix(t.Source, "xyzv") {
		return errors.New("only InterpolatedStates are currently supported in Cosmographia trajectory types")
	}
	return nil
}

// CgLabel definition.
type CgLabel struct {
	Color    []float64 `json:"color,omitempty"`
	FadeSize int       `json:"fadeSize,omitempty"`
	ShowText bool      `json:"showText,omitempty"`
}

// CgTrajectoryPlot definition.
type CgTrajectoryPlot struct {
	Color       []float64 `json:"color,omitempty"`
	LineWidth   int       `json:"lineWidth,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Lead        string    `json:"lead,omitempty"`
	Fade        int       `json:"fade,omitempty"`
	SampleCount int       `json:"sampleCount,omitempty"`
}

// CgInterpolatedState is one record of an xyzv file: a Julian date, a position in km and a velocity in km/s.
type CgInterpolatedState struct {
	JD       float64
	Position Vec3
	Velocity Vec3
}

// NewCgInterpolatedState converts the state at the date dt.
func NewCgInterpolatedState(dt time.Time, s State) CgInterpolatedState {
	return CgInterpolatedState{JD: julian.TimeToJD(dt), Position: s.R.Scale(1e-3), Velocity: s.V.Scale(1e-3)}
}

// FromText initializes from text. The record must have seven items.
func (i *CgInterpolatedState) FromText(record []string) error {
	if len(record) != 7 {
		return fmt.Errorf("xyzv record has %d fields instead of 7", len(record))
	}
	var vals [7]float64
	for k, txt := range record {
		val, err := strconv.ParseFloat(txt, 64)
		if err != nil {
			return err
		}
		vals[k] = val
	}
	i.JD = vals[0]
	i.Position = Vec3{vals[1], vals[2], vals[3]}
	i.Velocity = Vec3{vals[4], vals[5], vals[6]}
	return nil
}

// ToText converts to text for written output.
func (i *CgInterpolatedState) ToText() string {
	return fmt.Sprintf("%f %f %f %f %f %f %f", i.JD, i.Position[0], i.Position[1], i.Position[2], i.Velocity[0], i.Velocity[1], i.Velocity[2])
}

// ParseInterpolatedStates parses the records of an xyzv file, skipping comments.
func ParseInterpolatedStates(s string) ([]CgInterpolatedState, error) {
	var states []CgInterpolatedState
	r := csv.NewReader(strings.NewReader(s))
	r.Comma = ' '
	r.Comment = '#'
	for {
		record, err := r.Read()
		if err == io.EOF {
			return states, nil
		}
		if err != nil {
			return nil, err
		}
		var state CgInterpolatedState
		if err := state.FromText(record); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
}

func writeInterpolatedFile(path string, epoch time.Time, samples []PreviewSample, chase bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	// Header
	if _, err = fmt.Fprintf(f, `# Creation date (UTC): %s
# Records are <jd> <x> <y> <z> <vel x> <vel y> <vel z>
#   Time is a UTC Julian date
#   Position in km
#   Velocity in km/sec
#   Simulation time start (UTC): %s`, time.Now().UTC(), epoch.Add(seconds(samples[0].Time))); err != nil {
		return err
	}
	for _, sample := range samples {
		st, tgt := sample.States()
		if !chase {
			st = tgt
		}
		rec := NewCgInterpolatedState(epoch.Add(seconds(sample.Time)), st)
		if _, err = f.WriteString("\n" + rec.ToText()); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(f, "\n# Simulation time end (UTC): %s\n", epoch.Add(seconds(samples[len(samples)-1].Time)))
	return err
}

// ExportTrajectory writes the predicted trajectories in dir: one Cosmographia xyzv file per
// spacecraft, the catalog referencing them and a CSV of the relative motion.
func ExportTrajectory(dir, name string, epoch time.Time, samples []PreviewSample) error {
	if len(samples) == 0 {
		return errors.New("no samples to export")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	start := epoch.Add(seconds(samples[0].Time)).UTC()
	end := epoch.Add(seconds(samples[len(samples)-1].Time)).UTC()
	cat := CgCatalog{Version: "1.0", Name: name}
	for k, vehicle := range []string{"chase", "target"} {
		source := fmt.Sprintf("prop-%s-%s.xyzv", name, vehicle)
		if err := writeInterpolatedFile(filepath.Join(dir, source), epoch, samples, k == 0); err != nil {
			return fmt.Errorf("%s: %w", vehicle, err)
		}
		color := []float64{0.6, 1, 1}
		if k == 1 {
			color = []float64{1, 0.6, 0.2}
		}
		cat.Items = append(cat.Items, &CgItems{
			Class:           "spacecraft",
			Name:            name + "-" + vehicle,
			StartTime:       start.Format(time.RFC3339),
			EndTime:         end.Format(time.RFC3339),
			Center:          "Earth",
			TrajectoryFrame: "ICRF",
			Trajectory:      &CgTrajectory{Type: "InterpolatedStates", Source: source},
			Label:           &CgLabel{Color: color, FadeSize: 1000000, ShowText: true},
			TrajectoryPlot:  &CgTrajectoryPlot{Color: color, LineWidth: 1, Duration: fmt.Sprintf("%d d", int(end.Sub(start).Hours()/24+1)), Lead: "0 d", SampleCount: 10},
		})
	}
	for _, item := range cat.Items {
		if err := item.Trajectory.Validate(); err != nil {
			return fmt.Errorf("%s: %w", item.Name, err)
		}
	}
	marsh, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("catalog-%s.json", name)), marsh, 0644); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("ric-%s.csv", name)))
	if err != nil {
		return err
	}
	if err := writeRICCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRICCSV(w io.Writer, samples []PreviewSample) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"time", "R", "I", "C", "range"})
	for _, s := range samples {
		cw.Write(formatFloats(s.Time, s.RIC[0], s.RIC[1], s.RIC[2], s.Range))
	}
	cw.Flush()
	return cw.Error()
}

// WriteHistoryCSV writes the snapshots as CSV, one row per snapshot with both inertial states.
func WriteHistoryCSV(w io.Writer, snapshots []Snapshot) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"time", "fuel", "burns",
		"chase_x", "chase_y", "chase_z", "chase_vx", "chase_vy", "chase_vz",
		"target_x", "target_y", "target_z", "target_vx", "target_vy", "target_vz"})
	for _, s := range snapshots {
		row := formatFloats(s.Time, s.Fuel)
		row = append(row, strconv.Itoa(s.BurnCount))
		row = append(row, formatFloats(append(s.Chase.vector(), s.Target.vector()...)...)...)
		cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

func formatFloats(vals ...float64) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

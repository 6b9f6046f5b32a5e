package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/v2x.sim/internal/fsutil"
	"github.com/banshee-data/v2x.sim/internal/security"
	"github.com/banshee-data/v2x.sim/internal/timeutil"
	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
	"github.com/banshee-data/v2x.sim/internal/traffic/scenario"
	"github.com/banshee-data/v2x.sim/internal/units"
)

// Artifact file names.
const (
	MetricsFile        = "metrics.json"
	SignalTimelineFile = "signal_timeline.csv"
	ExitedFile         = "vehicles_exited_over_time.csv"
	RunLogFile         = "run_log.txt"
	ConfigFile         = "config_used.json"
	TimelineChartFile  = "signal_timeline.html"
	ExitedPlotFile     = "vehicles_exited.png"
)

// Run is everything the writers need from a finished simulation.
type Run struct {
	// Config is written verbatim to config_used.json.
	Config    interface{}
	Scenario  scenario.Params
	T         float64
	Metrics   engine.Metrics
	Snapshots []engine.Snapshot
	Phases    []traffic.Phase
}

// FinalMetrics is the schema of metrics.json.
type FinalMetrics struct {
	Time           float64 `json:"time"`
	Collisions     int     `json:"collisions"`
	NearMisses     int     `json:"near_misses"`
	VehiclesExited int     `json:"vehicles_exited"`
	TotalDelay     float64 `json:"total_delay"`
}

// Writer writes run artifacts to a FileSystem.
type Writer struct {
	FS fsutil.FileSystem
	// SpeedUnit is the secondary unit for speeds in the run log.
	SpeedUnit string
	// Charts enables the HTML and PNG charts.
	Charts bool
}

// NewWriter returns a Writer on the OS filesystem with km/h speeds and
// charts enabled.
func NewWriter() *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, SpeedUnit: units.KMPH, Charts: true}
}

// ArtifactDir returns baseDir/<stamp>[_<tag>], validated to stay inside
// baseDir.
func ArtifactDir(baseDir string, clock timeutil.Clock, tag string) (string, error) {
	name := timeutil.Stamp(clock)
	if tag != "" {
		name += "_" + security.SanitizeFilename(tag)
	}
	return security.ResolveOutputDir(baseDir, name)
}

// WriteArtifacts creates dir and writes every artifact of run into it. It
// returns the paths written.
func (w *Writer) WriteArtifacts(dir string, run Run) ([]string, error) {
	if err := w.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir %s: %w", dir, err)
	}

	type artifact struct {
		name  string
		build func(Run) ([]byte, error)
	}
	artifacts := []artifact{
		{MetricsFile, buildMetricsJSON},
		{SignalTimelineFile, buildSignalTimelineCSV},
		{ExitedFile, buildExitedCSV},
		{RunLogFile, w.buildRunLog},
		{ConfigFile, buildConfigJSON},
	}
	if w.Charts {
		artifacts = append(artifacts,
			artifact{TimelineChartFile, func(r Run) ([]byte, error) { return RenderTimelineChart(r.Snapshots, "Signal timeline") }},
			artifact{ExitedPlotFile, func(r Run) ([]byte, error) { return RenderExitedPlot(r.Snapshots) }},
		)
	}

	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		data, err := a.build(run)
		if err != nil {
			return written, fmt.Errorf("failed to build %s: %w", a.name, err)
		}
		path := filepath.Join(dir, a.name)
		if err := w.FS.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func buildMetricsJSON(run Run) ([]byte, error) {
	return json.MarshalIndent(FinalMetrics{
		Time:           run.T,
		Collisions:     run.Metrics.Collisions,
		NearMisses:     run.Metrics.NearMisses,
		VehiclesExited: run.Metrics.TotalVehiclesExited,
		TotalDelay:     run.Metrics.TotalDelay,
	}, "", "  ")
}

func buildConfigJSON(run Run) ([]byte, error) {
	return json.MarshalIndent(run.Config, "", "  ")
}

// formatT renders a rounded time the way the timeline CSVs expect: the
// shortest representation, with at least one decimal.
func formatT(t float64) string {
	s := strconv.FormatFloat(round2(t), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildSignalTimelineCSV(run Run) ([]byte, error) {
	rows := make([][]string, 0, len(run.Snapshots))
	for _, s := range run.Snapshots {
		rows = append(rows, []string{
			formatT(s.T),
			s.SignalState.String(),
			strconv.Itoa(s.EWApproaching),
			strconv.Itoa(s.NSApproaching),
		})
	}
	return writeCSV([]string{"t", "signal_state", "EW_approaching", "NS_approaching"}, rows)
}

func buildExitedCSV(run Run) ([]byte, error) {
	rows := make([][]string, 0, len(run.Snapshots))
	for _, s := range run.Snapshots {
		rows = append(rows, []string{formatT(s.T), strconv.Itoa(s.Metrics.TotalVehiclesExited)})
	}
	return writeCSV([]string{"t", "vehicles_exited"}, rows)
}

// Summary returns the four-line completion summary printed by the CLI and
// written at the top of run_log.txt.
func Summary(t float64, m engine.Metrics) string {
	var b strings.Builder
	b.WriteString("--- Simulation Complete ---\n")
	fmt.Fprintf(&b, "Time: %.1fs | Vehicles exited: %d\n", t, m.TotalVehiclesExited)
	fmt.Fprintf(&b, "Collisions: %d | Near-misses: %d\n", m.Collisions, m.NearMisses)
	fmt.Fprintf(&b, "Total delay: %.2f\n", m.TotalDelay)
	return b.String()
}

func (w *Writer) buildRunLog(run Run) ([]byte, error) {
	var b strings.Builder
	b.WriteString(Summary(run.T, run.Metrics))

	speed := func(mps float64) string {
		s := units.FormatSpeed(mps, units.MPS)
		if w.SpeedUnit != "" && w.SpeedUnit != units.MPS {
			s += " (" + units.FormatSpeed(mps, w.SpeedUnit) + ")"
		}
		return s
	}
	fmt.Fprintf(&b, "Vehicles: EW %d @ %s | NS %d @ %s\n",
		run.Scenario.EWCount, speed(run.Scenario.VEW), run.Scenario.NSCount, speed(run.Scenario.VNS))

	if len(run.Phases) > 0 {
		stats := PhaseStats(run.Phases)
		b.WriteString("Signal phases:\n")
		for _, st := range stats {
			fmt.Fprintf(&b, "  %-9s x%-3d total %6.1fs  mean %5.1fs\n", st.State, st.Count, st.Total, st.Mean())
		}
	}
	return []byte(b.String()), nil
}

// PhaseStat aggregates the completed phases of one signal state.
type PhaseStat struct {
	State traffic.SignalState `json:"state"`
	Count int                 `json:"count"`
	Total float64             `json:"total"`
}

// Mean returns the mean phase duration, or 0 with no phases.
func (p PhaseStat) Mean() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Total / float64(p.Count)
}

// PhaseStats groups phases by state in state order, omitting states that
// never completed.
func PhaseStats(phases []traffic.Phase) []PhaseStat {
	var byState [traffic.NSYellow + 1]PhaseStat
	for _, p := range phases {
		if p.State < 0 || p.State > traffic.NSYellow {
			continue
		}
		st := &byState[p.State]
		st.State = p.State
		st.Count++
		st.Total += p.Duration
	}
	var out []PhaseStat
	for _, st := range byState {
		if st.Count > 0 {
			out = append(out, st)
		}
	}
	return out
}

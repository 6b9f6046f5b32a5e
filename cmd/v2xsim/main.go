// Command v2xsim runs one V2X intersection scenario and prints the safety
// and efficiency summary. Optionally it records the run in SQLite and
// writes the artifact bundle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/v2x.sim/internal/config"
	"github.com/banshee-data/v2x.sim/internal/db"
	"github.com/banshee-data/v2x.sim/internal/monitoring"
	"github.com/banshee-data/v2x.sim/internal/report"
	"github.com/banshee-data/v2x.sim/internal/timeutil"
	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
	"github.com/banshee-data/v2x.sim/internal/traffic/scenario"
	"github.com/banshee-data/v2x.sim/internal/units"
	"github.com/banshee-data/v2x.sim/internal/version"
)

var defaults = config.DefaultSimConfig()

var (
	configPath = flag.String("config", "", "JSON simulation config; flags override its values")

	duration   = flag.Float64("duration", defaults.GetDuration(), "Simulation duration (s)")
	dt         = flag.Float64("dt", defaults.GetDT(), "Timestep (s)")
	ewCount    = flag.Int("ew-count", defaults.GetEWCount(), "Vehicles on EW approach")
	nsCount    = flag.Int("ns-count", defaults.GetNSCount(), "Vehicles on NS approach")
	spawnGapEW = flag.Float64("spawn-gap-ew", defaults.GetSpawnGapEW(), "Spawn interval EW (s)")
	spawnGapNS = flag.Float64("spawn-gap-ns", defaults.GetSpawnGapNS(), "Spawn interval NS (s)")
	vEW        = flag.Float64("v-ew", defaults.GetVEW(), "Initial speed EW (m/s)")
	vNS        = flag.Float64("v-ns", defaults.GetVNS(), "Initial speed NS (m/s)")
	vJitter    = flag.Float64("v-jitter", defaults.GetVJitter(), "Initial speed jitter amplitude (m/s)")
	seed       = flag.Int64("seed", defaults.GetSeed(), "Random seed")
	minGreen   = flag.Float64("min-green", defaults.GetMinGreen(), "Signal min green (s)")
	maxGreen   = flag.Float64("max-green", defaults.GetMaxGreen(), "Signal max green (s)")
	yellow     = flag.Float64("yellow", defaults.GetYellow(), "Signal yellow (s)")
	allRed     = flag.Float64("all-red", defaults.GetAllRed(), "Signal all-red (s)")
	policy     = flag.String("policy", defaults.GetPolicy(), "Signal policy: adaptive or fixed")

	artifacts  = flag.Bool("artifacts", false, "Write the artifact bundle under -out")
	outDir     = flag.String("out", "artifacts", "Base directory for artifact bundles")
	tag        = flag.String("tag", "", "Optional tag appended to the artifacts folder name and stored with the run")
	charts     = flag.Bool("charts", true, "Include HTML and PNG charts in the artifact bundle")
	speedUnits = flag.String("speed-units", units.KMPH, "Secondary speed unit in run_log.txt (mps, kmph, mph)")
	dbPath     = flag.String("db", "", "SQLite database to record the run in (empty: do not record)")
	verbose    = flag.Bool("v", false, "Log signal phase changes")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// applyFlagOverrides copies every explicitly set flag into cfg.
func applyFlagOverrides(cfg *config.SimConfig, set map[string]bool) {
	floats := map[string]struct {
		dst **float64
		val *float64
	}{
		"duration":     {&cfg.Duration, duration},
		"dt":           {&cfg.DT, dt},
		"spawn-gap-ew": {&cfg.SpawnGapEW, spawnGapEW},
		"spawn-gap-ns": {&cfg.SpawnGapNS, spawnGapNS},
		"v-ew":         {&cfg.VEW, vEW},
		"v-ns":         {&cfg.VNS, vNS},
		"v-jitter":     {&cfg.VJitter, vJitter},
		"min-green":    {&cfg.MinGreen, minGreen},
		"max-green":    {&cfg.MaxGreen, maxGreen},
		"yellow":       {&cfg.Yellow, yellow},
		"all-red":      {&cfg.AllRed, allRed},
	}
	for name, f := range floats {
		if set[name] {
			*f.dst = config.PtrFloat64(*f.val)
		}
	}
	if set["ew-count"] {
		cfg.EWCount = config.PtrInt(*ewCount)
	}
	if set["ns-count"] {
		cfg.NSCount = config.PtrInt(*nsCount)
	}
	if set["seed"] {
		cfg.Seed = config.PtrInt64(*seed)
	}
	if set["policy"] {
		cfg.Policy = config.PtrString(*policy)
	}
}

// options are the non-simulation settings of one invocation.
type options struct {
	RunID     string
	Tag       string
	DBPath    string
	Artifacts bool
	OutDir    string
	Charts    bool
	SpeedUnit string
	Verbose   bool
	Clock     timeutil.Clock
}

// execute runs cfg, prints the summary to stdout and records the run as
// opts asks.
func execute(ctx context.Context, cfg *config.SimConfig, opts options, stdout io.Writer) error {
	var simOpts []engine.Option
	if opts.Verbose {
		simOpts = append(simOpts, engine.WithLogger(monitoring.RunLogger(opts.RunID)))
	}
	sim, err := engine.New(cfg.EngineConfig(), simOpts...)
	if err != nil {
		return err
	}
	params := cfg.ScenarioParams()
	if _, err := scenario.Populate(sim, params); err != nil {
		return err
	}

	rec := report.NewRecorder(sim.Steps(cfg.GetDuration()))
	m, err := sim.RunContext(ctx, cfg.GetDuration(), rec.Observe)
	if err != nil {
		return fmt.Errorf("simulation interrupted at t=%.1fs: %w", sim.T(), err)
	}

	fmt.Fprintln(stdout, "--- Simulation Complete ---")
	fmt.Fprintf(stdout, "Time: %.1fs | Vehicles exited: %d\n", sim.T(), m.TotalVehiclesExited)
	fmt.Fprintf(stdout, "Collisions: %d | Near-misses: %d\n", m.Collisions, m.NearMisses)
	fmt.Fprintf(stdout, "Total delay (veh*m/s*s): %.2f\n", m.TotalDelay)

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if opts.DBPath != "" {
		database, err := db.OpenDB(opts.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		run := &db.SimRun{
			RunID:          opts.RunID,
			Tag:            opts.Tag,
			Config:         cfgJSON,
			Duration:       cfg.GetDuration(),
			SimTime:        sim.T(),
			Ticks:          sim.Tick(),
			Collisions:     m.Collisions,
			NearMisses:     m.NearMisses,
			VehiclesExited: m.TotalVehiclesExited,
			TotalDelay:     m.TotalDelay,
		}
		if err := database.InsertRun(run); err != nil {
			return err
		}
		if err := database.InsertTimeline(run.RunID, rec.Snapshots()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Run recorded: %s\n", run.RunID)
	}

	if opts.Artifacts {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.OutDir, err)
		}
		dir, err := report.ArtifactDir(opts.OutDir, opts.Clock, opts.Tag)
		if err != nil {
			return err
		}
		w := report.NewWriter()
		w.Charts = opts.Charts
		w.SpeedUnit = opts.SpeedUnit
		var phases []traffic.Phase
		if sig, ok := sim.Signal().(*traffic.Signal); ok {
			phases = sig.Phases()
		}
		if _, err := w.WriteArtifacts(dir, report.Run{
			Config:    json.RawMessage(cfgJSON),
			Scenario:  params,
			T:         sim.T(),
			Metrics:   m,
			Snapshots: rec.Snapshots(),
			Phases:    phases,
		}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Artifacts written to: %s\n", dir)
	}
	return nil
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String("v2xsim"))
		return
	}

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		loaded, err := config.LoadSimConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlagOverrides(cfg, set)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	unit, err := units.ParseUnit(*speedUnits)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		RunID:     uuid.NewString(),
		Tag:       *tag,
		DBPath:    *dbPath,
		Artifacts: *artifacts,
		OutDir:    *outDir,
		Charts:    *charts,
		SpeedUnit: unit,
		Verbose:   *verbose,
		Clock:     timeutil.RealClock{},
	}
	if err := execute(ctx, cfg.Resolved(), opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

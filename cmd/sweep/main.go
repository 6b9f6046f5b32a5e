// Command sweep runs the signal timing grid offline and writes summary and
// raw CSV tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/v2x.sim/internal/config"
	"github.com/banshee-data/v2x.sim/internal/db"
	"github.com/banshee-data/v2x.sim/internal/sweep"
	"github.com/banshee-data/v2x.sim/internal/version"
)

// gridFlags holds the raw grid flag values before parsing.
type gridFlags struct {
	MinGreen, MaxGreen, Yellow, AllRed string
	Policies, Seeds                    string
	Concurrency                        int
}

// buildRequest parses the grid flags into a sweep request over base.
func buildRequest(base *config.SimConfig, f gridFlags) (sweep.Request, error) {
	req := sweep.Request{Base: base, Concurrency: f.Concurrency}
	var err error
	for _, dim := range []struct {
		name string
		raw  string
		dst  *[]float64
	}{
		{"min-green", f.MinGreen, &req.MinGreen},
		{"max-green", f.MaxGreen, &req.MaxGreen},
		{"yellow", f.Yellow, &req.Yellow},
		{"all-red", f.AllRed, &req.AllRed},
	} {
		if dim.raw == "" {
			continue
		}
		if *dim.dst, err = sweep.ParseParamList(dim.raw); err != nil {
			return req, fmt.Errorf("invalid -%s: %w", dim.name, err)
		}
	}
	for _, p := range strings.Split(f.Policies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			req.Policies = append(req.Policies, p)
		}
	}
	if f.Seeds != "" {
		if req.Seeds, err = sweep.ParseSeeds(f.Seeds); err != nil {
			return req, fmt.Errorf("invalid -seeds: %w", err)
		}
	}
	return req, nil
}

// runSweep executes req, streaming raw rows as runs finish, and writes the
// summary table once the sweep completes.
func runSweep(ctx context.Context, runner *sweep.Runner, req sweep.Request, summary, raw io.Writer) ([]sweep.ComboResult, error) {
	out := sweep.NewCSVWriter(summary, raw)
	if err := out.WriteHeaders(); err != nil {
		return nil, err
	}
	var rawErr error
	runner.OnResult = func(r sweep.SeedResult) {
		if err := out.WriteRaw(r); err != nil && rawErr == nil {
			rawErr = err
		}
	}
	results, err := runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if rawErr != nil {
		return nil, rawErr
	}
	for _, r := range results {
		if err := out.WriteSummary(r); err != nil {
			return nil, err
		}
	}
	return results, out.Flush()
}

func main() {
	configPath := flag.String("config", "", "JSON simulation config supplying every value not swept")
	duration := flag.Float64("duration", 0, "Override simulation duration (s); 0 keeps the config value")

	minGreen := flag.String("min-green", "", "Comma-separated min green values (e.g. 6,8,10) or range start:end:step")
	maxGreen := flag.String("max-green", "", "Comma-separated max green values or range start:end:step")
	yellow := flag.String("yellow", "", "Comma-separated yellow values or range start:end:step")
	allRed := flag.String("all-red", "", "Comma-separated all-red values or range start:end:step")
	policies := flag.String("policies", "", "Comma-separated signal policies (adaptive, fixed)")
	seeds := flag.String("seeds", "", "Seeds: comma list (1,2,3) or range start:end[:step]")
	concurrency := flag.Int("concurrency", 0, "Simultaneous simulations; 0 means one per CPU")

	output := flag.String("output", "", "Summary CSV filename (defaults to sweep-<timestamp>.csv)")
	dbPath := flag.String("db", "", "SQLite database to record runs and results in (empty: do not record)")
	showVer := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("sweep"))
		return
	}

	base := config.EmptySimConfig()
	if *configPath != "" {
		loaded, err := config.LoadSimConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		base = loaded
	}
	if *duration > 0 {
		base.Duration = config.PtrFloat64(*duration)
	}

	req, err := buildRequest(base, gridFlags{
		MinGreen: *minGreen, MaxGreen: *maxGreen, Yellow: *yellow, AllRed: *allRed,
		Policies: *policies, Seeds: *seeds, Concurrency: *concurrency,
	})
	if err != nil {
		log.Fatal(err)
	}

	runner := sweep.NewRunner(nil)
	if *dbPath != "" {
		database, err := db.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		runner.Store = database
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("sweep-%s.csv", time.Now().Format("20060102-150405"))
	}
	rawFilename := strings.TrimSuffix(filename, ".csv") + "-raw.csv"

	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Could not create output file %s: %v", filename, err)
	}
	defer f.Close()
	fRaw, err := os.Create(rawFilename)
	if err != nil {
		log.Fatalf("Could not create raw output file %s: %v", rawFilename, err)
	}
	defer fRaw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	combos, _ := sweep.Grid(req)
	log.Printf("Parameter combinations: %d", len(combos))

	start := time.Now()
	results, err := runSweep(ctx, runner, req, f, fRaw)
	if err != nil {
		log.Printf("ERROR: Sweep failed: %v", err)
		return
	}

	log.Printf("Sweep complete in %s", time.Since(start).Round(time.Millisecond))
	log.Printf("Summary: %s", filename)
	log.Printf("Raw data: %s", rawFilename)
	if best, ok := sweep.Best(results); ok {
		log.Printf("Best combo %d: min_green=%.1f max_green=%.1f yellow=%.1f all_red=%.1f policy=%s score=%.2f",
			best.Index, best.MinGreen, best.MaxGreen, best.Yellow, best.AllRed, best.Policy, best.Score)
	}
	if state := runner.GetSweepState(); state.SweepID != "" && runner.Store != nil {
		log.Printf("Sweep ID: %s", state.SweepID)
	}
}

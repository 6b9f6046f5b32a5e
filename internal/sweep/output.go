package sweep

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVWriter writes the per-combo summary and per-run raw tables.
type CSVWriter struct {
	Summary *csv.Writer
	Raw     *csv.Writer
}

// NewCSVWriter creates a CSVWriter. raw may be nil to skip the raw table.
func NewCSVWriter(summary, raw io.Writer) *CSVWriter {
	w := &CSVWriter{Summary: csv.NewWriter(summary)}
	if raw != nil {
		w.Raw = csv.NewWriter(raw)
	}
	return w
}

var comboHeader = []string{"combo", "min_green", "max_green", "yellow", "all_red", "policy"}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func comboFields(c Combo) []string {
	return []string{strconv.Itoa(c.Index), ftoa(c.MinGreen), ftoa(c.MaxGreen), ftoa(c.Yellow), ftoa(c.AllRed), c.Policy}
}

// WriteHeaders writes the header row of both tables.
func (c *CSVWriter) WriteHeaders() error {
	summary := append(append([]string{}, comboHeader...),
		"runs",
		"collisions_mean", "collisions_stddev",
		"near_misses_mean", "near_misses_stddev",
		"exited_mean", "exited_stddev",
		"delay_mean", "delay_stddev",
		"score")
	if err := c.Summary.Write(summary); err != nil {
		return err
	}
	if c.Raw == nil {
		return nil
	}
	return c.Raw.Write([]string{"combo", "seed", "run_id", "collisions", "near_misses", "vehicles_exited", "total_delay"})
}

// WriteSummary writes one combo row.
func (c *CSVWriter) WriteSummary(r ComboResult) error {
	row := append(comboFields(r.Combo),
		strconv.Itoa(r.Runs),
		ftoa(r.CollisionsMean), ftoa(r.CollisionsStddev),
		ftoa(r.NearMissesMean), ftoa(r.NearMissesStddev),
		ftoa(r.ExitedMean), ftoa(r.ExitedStddev),
		ftoa(r.DelayMean), ftoa(r.DelayStddev),
		ftoa(r.Score))
	return c.Summary.Write(row)
}

// WriteRaw writes one run row. It is a no-op without a raw table.
func (c *CSVWriter) WriteRaw(r SeedResult) error {
	if c.Raw == nil {
		return nil
	}
	return c.Raw.Write([]string{
		strconv.Itoa(r.Combo),
		strconv.FormatInt(r.Seed, 10),
		r.RunID,
		strconv.Itoa(r.Metrics.Collisions),
		strconv.Itoa(r.Metrics.NearMisses),
		strconv.Itoa(r.Metrics.TotalVehiclesExited),
		ftoa(r.Metrics.TotalDelay),
	})
}

// Flush flushes both tables and returns the first write error.
func (c *CSVWriter) Flush() error {
	c.Summary.Flush()
	if err := c.Summary.Error(); err != nil {
		return err
	}
	if c.Raw == nil {
		return nil
	}
	c.Raw.Flush()
	return c.Raw.Error()
}

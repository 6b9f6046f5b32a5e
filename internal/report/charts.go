package report

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/v2x.sim/internal/traffic"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
)

// maxChartPoints bounds the points per series in the HTML chart.
const maxChartPoints = 2000

// signalLegend explains the numeric signal series.
var signalLegend = func() string {
	var b bytes.Buffer
	for s := traffic.EWGreen; s <= traffic.NSYellow; s++ {
		if s > traffic.EWGreen {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%d=%s", int(s), s)
	}
	return b.String()
}()

// RenderTimelineChart renders the approaching counts of both lanes and the
// signal state code against time as a standalone go-echarts HTML page.
func RenderTimelineChart(snaps []engine.Snapshot, title string) ([]byte, error) {
	stride := len(snaps)/maxChartPoints + 1

	x := make([]string, 0, len(snaps)/stride+1)
	ew := make([]opts.LineData, 0, cap(x))
	ns := make([]opts.LineData, 0, cap(x))
	sig := make([]opts.LineData, 0, cap(x))
	for i := 0; i < len(snaps); i += stride {
		s := snaps[i]
		x = append(x, strconv.FormatFloat(round2(s.T), 'f', -1, 64))
		ew = append(ew, opts.LineData{Value: s.EWApproaching})
		ns = append(ns, opts.LineData{Value: s.NSApproaching})
		sig = append(sig, opts.LineData{Value: int(s.SignalState)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("ticks=%d stride=%d  signal: %s", len(snaps), stride, signalLegend)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "vehicles / state", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("EW approaching", ew).
		AddSeries("NS approaching", ns).
		AddSeries("signal state", sig)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render timeline chart: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderExitedPlot renders cumulative exits against time as a PNG.
func RenderExitedPlot(snaps []engine.Snapshot) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Vehicles exited"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "vehicles"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, 0, len(snaps)+1)
	pts = append(pts, plotter.XY{X: 0, Y: 0})
	for _, s := range snaps {
		pts = append(pts, plotter.XY{X: s.T, Y: float64(s.Metrics.TotalVehiclesExited)})
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build exit line: %w", err)
	}
	l.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	l.Width = vg.Points(1.5)
	p.Add(l)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render png: %w", err)
	}
	return buf.Bytes(), nil
}

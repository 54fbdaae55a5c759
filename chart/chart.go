// Package chart draws stacked bar charts to png files with gonum/plot.
package chart

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/happyface/jobeff"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultDPI keeps the dashboard images small.
const DefaultDPI = 60

type Renderer struct {
	Width    vg.Length
	Height   vg.Length
	DPI      int
	BarWidth vg.Length
}

func New(dpi int) *Renderer {
	return &Renderer{
		Width:    8 * vg.Inch,
		Height:   6 * vg.Inch,
		DPI:      dpi,
		BarWidth: vg.Points(14),
	}
}

func (r *Renderer) plot(spec jobeff.ChartSpec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.Y.Label.Text = spec.YLabel
	p.Legend.Top = true

	var below *plotter.BarChart
	for _, seg := range spec.Segments {
		if len(seg.Values) != len(spec.Categories) {
			return nil, fmt.Errorf("segment %q has %v values for %v categories", seg.Label, len(seg.Values), len(spec.Categories))
		}
		bars, err := plotter.NewBarChart(plotter.Values(seg.Values), r.BarWidth)
		if err != nil {
			return nil, fmt.Errorf("failed to create bars for %q: %w", seg.Label, err)
		}
		bars.Color = seg.Color
		bars.LineStyle.Width = 0
		if below != nil {
			bars.StackOn(below)
		}
		p.Add(bars)
		p.Legend.Add(seg.Label, bars)
		below = bars
	}

	p.NominalX(spec.Categories...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	if len(spec.YTicks) > 0 {
		ticks := make([]plot.Tick, 0, len(spec.YTicks))
		for _, v := range spec.YTicks {
			ticks = append(ticks, plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', -1, 64)})
		}
		p.Y.Tick.Marker = plot.ConstantTicks(ticks)
		p.Y.Min = 0
		p.Y.Max = max(p.Y.Max, spec.YTicks[len(spec.YTicks)-1])
	}
	return p, nil
}

// Render draws spec as a png into filename.
func (r *Renderer) Render(spec jobeff.ChartSpec, filename string) error {
	p, err := r.plot(spec)
	if err != nil {
		return err
	}
	c := vgimg.NewWith(vgimg.UseWH(r.Width, r.Height), vgimg.UseDPI(r.DPI))
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %v: %w", filename, err)
	}
	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write png %v: %w", filename, err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("failed to close %v: %w", filename, err)
	}
	slog.Debug("rendered chart", "filename", filename, "title", spec.Title, "categories", len(spec.Categories))
	return nil
}

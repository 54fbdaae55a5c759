package efficiency

import (
	"image/color"
	"math"
	"slices"
	"strconv"

	"github.com/happyface/jobeff"
)

// Series holds one value per user for each stacked segment.
type Series struct {
	Users    []string
	Total    []float64
	Queue    []float64
	Ratio10  []float64
	Ratio30  []float64
	Ratio80  []float64
	Ratio100 []float64
}

// BuildSeries returns the absolute counts and the same counts as a
// percentage of each user's total, rounded to one decimal. Users are sorted
// by name.
func BuildSeries(users map[string]*jobeff.UserStats) (abs Series, rel Series) {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	slices.Sort(names)
	abs.Users = names
	rel.Users = names

	for _, name := range names {
		u := users[name]
		total := float64(u.Total)
		abs.Total = append(abs.Total, total)
		abs.Queue = append(abs.Queue, float64(u.Queued))
		abs.Ratio10 = append(abs.Ratio10, float64(u.Ratio10))
		abs.Ratio30 = append(abs.Ratio30, float64(u.Ratio30))
		abs.Ratio80 = append(abs.Ratio80, float64(u.Ratio80))
		abs.Ratio100 = append(abs.Ratio100, float64(u.Ratio100))

		rel.Total = append(rel.Total, total)
		rel.Queue = append(rel.Queue, percentOf(u.Queued, u.Total))
		rel.Ratio10 = append(rel.Ratio10, percentOf(u.Ratio10, u.Total))
		rel.Ratio30 = append(rel.Ratio30, percentOf(u.Ratio30, u.Total))
		rel.Ratio80 = append(rel.Ratio80, percentOf(u.Ratio80, u.Total))
		rel.Ratio100 = append(rel.Ratio100, percentOf(u.Ratio100, u.Total))
	}
	return abs, rel
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return roundTenth(float64(n) * 100 / float64(total))
}

// roundTenth rounds the exact binary value of v to one decimal, ties to
// even. Scaling by 10 first would turn near ties like 0.15 into exact ones.
func roundTenth(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return r
}

// AbsoluteTicks spaces the job count axis in tenths of the largest total,
// at least 5 apart, up to 5 above the largest total.
func AbsoluteTicks(totals []float64) []float64 {
	var maxJobs float64
	for _, t := range totals {
		maxJobs = max(maxJobs, t)
	}
	step := math.Floor(maxJobs / 10)
	if step == 0 {
		step = 5
	}
	var ticks []float64
	for v := 0.0; v < maxJobs+5; v += step {
		ticks = append(ticks, v)
	}
	return ticks
}

func RelativeTicks() []float64 {
	ticks := make([]float64, 0, 11)
	for v := 0; v <= 100; v += 10 {
		ticks = append(ticks, float64(v))
	}
	return ticks
}

var (
	colorQueue    = color.RGBA{R: 238, G: 130, B: 238, A: 255}
	colorRatio10  = color.RGBA{R: 255, A: 255}
	colorRatio30  = color.RGBA{R: 255, G: 165, A: 255}
	colorRatio80  = color.RGBA{R: 191, G: 191, A: 255}
	colorRatio100 = color.RGBA{G: 128, A: 255}
)

// Segments orders the series bottom to top: queue, then rising efficiency.
func (s Series) Segments() []jobeff.Segment {
	return []jobeff.Segment{
		{Label: "queue", Color: colorQueue, Values: s.Queue},
		{Label: "ratio < 10%", Color: colorRatio10, Values: s.Ratio10},
		{Label: "10% < ratio < 30%", Color: colorRatio30, Values: s.Ratio30},
		{Label: "30% < ratio < 80%", Color: colorRatio80, Values: s.Ratio80},
		{Label: "ratio > 80%", Color: colorRatio100, Values: s.Ratio100},
	}
}

func absoluteChart(abs Series) jobeff.ChartSpec {
	return jobeff.ChartSpec{
		Title:      "Job Efficiency (absolute view)",
		YLabel:     "Number of Jobs",
		Categories: abs.Users,
		Segments:   abs.Segments(),
		YTicks:     AbsoluteTicks(abs.Total),
	}
}

func relativeChart(rel Series) jobeff.ChartSpec {
	return jobeff.ChartSpec{
		Title:      "Job Efficiency (relative view)",
		YLabel:     "fraction in %",
		Categories: rel.Users,
		Segments:   rel.Segments(),
		YTicks:     RelativeTicks(),
	}
}

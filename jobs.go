package jobeff

import (
	"image/color"
	"time"
)

// Job states as reported in the qstat xml.
const (
	StatePending = "pending"
	StateWaiting = "waiting"
	StateRunning = "running"
)

// UserStats holds the per-user counters collected from one qstat snapshot.
// Ratio buckets only count running jobs that report a cpu efficiency.
type UserStats struct {
	Total   int
	Running int
	Waiting int
	Queued  int

	Ratio100 int // cpueff > 80
	Ratio80  int // 30 < cpueff <= 80
	Ratio30  int // 10 < cpueff <= 30
	Ratio10  int // cpueff <= 10
}

// ResultRecord is what a module run hands back to the host. The first three
// fields are the persisted result columns.
type ResultRecord struct {
	EffPlotFilename    string
	RelEffPlotFilename string
	ResultTimestamp    int64

	SourceURL string
	Status    float64
}

// Run identifies one acquisition cycle of the host.
type Run struct {
	ID   string
	Time time.Time
}

// Download is a registered source file. TmpPath fails if the file has not
// been fetched or the fetch failed.
type Download interface {
	SourceURL() string
	TmpPath() (string, error)
}

type DownloadService interface {
	AddDownload(url string) Download
	ArchivePath(run Run, filename string) (string, error)
}

// Segment is one layer of a stacked bar chart, one value per category.
type Segment struct {
	Label  string
	Color  color.Color
	Values []float64
}

// ChartSpec describes a stacked bar chart. Segments are drawn bottom to top.
type ChartSpec struct {
	Title      string
	YLabel     string
	Categories []string
	Segments   []Segment
	YTicks     []float64
}

type Renderer interface {
	Render(spec ChartSpec, filename string) error
}

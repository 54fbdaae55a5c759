// Package efficiency implements the jobs efficiency report: per-user job
// counts from a qstat snapshot, split by cpu/wall ratio, drawn as an
// absolute and a relative stacked bar chart.
package efficiency

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/qstat"
)

var ErrConfig = errors.New("configuration error")

// Name is the module name used in instance configuration files.
const Name = "JobsEfficiencyPlot"

// Result table layout.
const (
	ResultTable           = "mod_jobs_efficiency_plot"
	ColumnEffPlot         = "filename_eff_plot"
	ColumnRelEffPlot      = "filename_rel_eff_plot"
	ColumnResultTimestamp = "result_timestamp"
)

type Config struct {
	// Comma separated groups to include, empty for all.
	Group string `yaml:"group"`
	// URL of the input qstat xml file.
	QstatXML string `yaml:"qstat_xml"`
}

type Module struct {
	instance  string
	config    Config
	downloads jobeff.DownloadService
	renderer  jobeff.Renderer

	groups   []string
	qstatXML jobeff.Download
}

// Report is the outcome of one ExtractData call. Users is empty when no job
// passed the group filter.
type Report struct {
	Record jobeff.ResultRecord
	Users  map[string]*jobeff.UserStats
}

func New(instance string, config Config, downloads jobeff.DownloadService, renderer jobeff.Renderer) *Module {
	return &Module{
		instance:  instance,
		config:    config,
		downloads: downloads,
		renderer:  renderer,
	}
}

func (m *Module) Instance() string {
	return m.instance
}

func (m *Module) Groups() []string {
	return m.groups
}

func ParseGroups(group string) []string {
	var groups []string
	for _, g := range strings.Split(strings.TrimSpace(group), ",") {
		if g == "" {
			continue
		}
		if strings.TrimSpace(g) != g {
			slog.Warn("group entry has surrounding spaces and is matched as is", "group", g)
		}
		groups = append(groups, g)
	}
	return groups
}

// PrepareAcquisition parses the group filter and registers the qstat xml
// with the download service. It fails before touching the download service
// if qstat_xml is not configured.
func (m *Module) PrepareAcquisition() error {
	m.groups = ParseGroups(m.config.Group)
	if m.config.QstatXML == "" {
		return fmt.Errorf("%w: qstat_xml option not set for %v", ErrConfig, m.instance)
	}
	m.qstatXML = m.downloads.AddDownload(m.config.QstatXML)
	slog.Debug("registered qstat xml", "instance", m.instance, "url", m.config.QstatXML, "groups", m.groups)
	return nil
}

func (m *Module) plotFilenames() (eff, relEff string) {
	return m.instance + "_jobs_eff.png", m.instance + "_jobs_rel_eff.png"
}

// ExtractData reads the downloaded document, aggregates it and draws both
// charts into the archive of run. Nothing is drawn if no user is left after
// filtering.
func (m *Module) ExtractData(run jobeff.Run) (*Report, error) {
	if m.qstatXML == nil {
		return nil, fmt.Errorf("%w: acquisition of %v was not prepared", ErrConfig, m.instance)
	}
	report := &Report{
		Record: jobeff.ResultRecord{
			SourceURL: m.qstatXML.SourceURL(),
			Status:    1.0,
		},
	}

	path, err := m.qstatXML.TmpPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get qstat xml for %v: %w", m.instance, err)
	}
	doc, err := qstat.ParseFile(path)
	if err != nil {
		return nil, err
	}
	hierarchy := qstat.BuildGroupHierarchy(doc)
	report.Record.ResultTimestamp = qstat.ExtractTimestamp(doc)
	report.Users = Aggregate(doc, m.groups, hierarchy)

	if len(report.Users) == 0 {
		slog.Info("no jobs matched, skipping plots", "instance", m.instance)
		return report, nil
	}

	abs, rel := BuildSeries(report.Users)
	effName, relEffName := m.plotFilenames()

	err = m.render(run, absoluteChart(abs), effName)
	if err != nil {
		return nil, err
	}
	report.Record.EffPlotFilename = effName

	err = m.render(run, relativeChart(rel), relEffName)
	if err != nil {
		return nil, err
	}
	report.Record.RelEffPlotFilename = relEffName

	slog.Debug("extracted jobs efficiency", "instance", m.instance, "users", len(report.Users), "timestamp", report.Record.ResultTimestamp)
	return report, nil
}

func (m *Module) render(run jobeff.Run, spec jobeff.ChartSpec, filename string) error {
	path, err := m.downloads.ArchivePath(run, filename)
	if err != nil {
		return fmt.Errorf("failed to get archive path for %v: %w", filename, err)
	}
	err = m.renderer.Render(spec, path)
	if err != nil {
		return fmt.Errorf("failed to render %v: %w", filename, err)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/chart"
	"github.com/happyface/jobeff/config"
	"github.com/happyface/jobeff/database"
	"github.com/happyface/jobeff/download"
	"github.com/happyface/jobeff/efficiency"
	"github.com/happyface/jobeff/metrics"
	"github.com/happyface/jobeff/publish"
	"github.com/happyface/jobeff/recorder"
)

var (
	// These will get overridden goreleaser.
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var watch = flag.Bool("w", false, "Keep running and acquire new results periodically (see -rate).")
var debug = flag.Bool("debug", false, "Enable debug logging.")
var modulesFlag = flag.String("modules", "", "Comma separated instance names to run. The default is all configured instances.")
var quiet = flag.Bool("q", false, "Do not print a summary of each result.")
var useHTTPServer = flag.Bool("http", false, "Show the latest results in an http server.")
var httpServerPort = flag.Int("http-port", 0, "Port of the http server. The default is to automatically pick a free port.")
var showVersion = flag.Bool("version", false, "Show version and exit.")

type app struct {
	config    *appConfig
	site      *config.Site
	instances []config.Instance

	rec       *recorder.Recorder
	renderer  jobeff.Renderer
	publisher *publish.Publisher
	metrics   *metrics.Metrics

	*resultPubSub
}

// instanceReport is the outcome of one instance in one run. Report is nil if
// the instance failed.
type instanceReport struct {
	Instance string
	Report   *efficiency.Report
	Err      error
}

func (a *app) Close() {
	if a.publisher != nil {
		err := a.publisher.Close()
		if err != nil {
			slog.Warn("failed to close kafka publisher", "err", err)
		}
	}
	if a.rec != nil {
		a.rec.Close()
	}
	database.Disconnect()
}

func (a *app) downloadOptions() download.Options {
	return download.Options{
		TmpDir:        a.site.TmpDir,
		ArchiveDir:    a.site.ArchiveDir,
		Timeout:       a.site.DownloadTimeout,
		MaxSize:       a.site.MaxSize,
		SSHKeyFile:    a.site.SSHKeyFile,
		SSHKnownHosts: a.site.SSHKnownHosts,
	}
}

// runOnce acquires every instance once: register inputs, fetch them, extract
// and record results. A failing instance does not stop the others.
func (a *app) runOnce(ctx context.Context) ([]instanceReport, error) {
	run, err := a.rec.StartRun(time.Now())
	if err != nil {
		return nil, err
	}
	slog.Debug("started run", "id", run.ID, "time", run.Time)

	downloads := download.New(a.downloadOptions())
	defer downloads.Cleanup()

	var reports []instanceReport
	var modules []*efficiency.Module
	for _, inst := range a.instances {
		m := efficiency.New(inst.Name, inst.Config, downloads, a.renderer)
		err := m.PrepareAcquisition()
		if err != nil {
			slog.Error("failed to prepare acquisition", "instance", inst.Name, "err", err)
			a.metrics.ObserveFailure(inst.Name)
			reports = append(reports, instanceReport{Instance: inst.Name, Err: err})
			continue
		}
		modules = append(modules, m)
	}

	err = downloads.PerformDownloads(ctx)
	if err != nil {
		a.completeRun(run, recorder.RunStatusFailed)
		return nil, err
	}

	for _, m := range modules {
		start := time.Now()
		report, err := m.ExtractData(run)
		if err == nil {
			err = a.rec.RecordResult(run, m.Instance(), report.Record)
		}
		if err != nil {
			slog.Error("failed to extract data", "instance", m.Instance(), "err", err)
			a.metrics.ObserveFailure(m.Instance())
			reports = append(reports, instanceReport{Instance: m.Instance(), Err: err})
			continue
		}
		a.metrics.ObserveReport(m.Instance(), report.Record, report.Users, time.Since(start))
		a.notify(ctx, run, m.Instance(), report.Record)
		reports = append(reports, instanceReport{Instance: m.Instance(), Report: report})
	}

	status := recorder.RunStatusDone
	for _, r := range reports {
		if r.Err != nil {
			status = recorder.RunStatusFailed
			break
		}
	}
	a.completeRun(run, status)
	return reports, nil
}

func (a *app) completeRun(run jobeff.Run, status string) {
	err := a.rec.CompleteRun(run, status)
	if err != nil {
		slog.Error("failed to complete run", "id", run.ID, "err", err)
	}
}

// notify hands a stored result to kafka and to http listeners.
func (a *app) notify(ctx context.Context, run jobeff.Run, instance string, rec jobeff.ResultRecord) {
	if a.publisher != nil {
		err := a.publisher.Publish(ctx, run, instance, rec)
		if err != nil {
			slog.Warn("failed to publish result", "instance", instance, "err", err)
		}
	}
	a.PublishResult(resultEvent{Run: run, Instance: instance, Record: rec})
}

func (a *app) runAndPrint(ctx context.Context) error {
	reports, err := a.runOnce(ctx)
	if err != nil {
		return err
	}
	if !*quiet {
		printReports(os.Stdout, reports)
	}
	return nil
}

func (a *app) setup(cfg *appConfig) error {
	a.config = cfg
	var err error
	a.site, err = config.LoadSite(cfg.SiteConfig)
	if err != nil {
		return err
	}
	instances, err := config.LoadInstances(cfg.InstanceConfig)
	if err != nil {
		return err
	}
	var names []string
	if *modulesFlag != "" {
		names = efficiency.ParseGroups(*modulesFlag)
	}
	a.instances, err = config.Select(instances, names)
	if err != nil {
		return err
	}
	if len(a.instances) == 0 {
		return fmt.Errorf("no instances configured in %v", cfg.InstanceConfig)
	}
	slog.Debug("loaded instances", "instances", instanceNames(a.instances))

	engine, err := database.Connect(a.site.Database, true)
	if err != nil {
		return err
	}
	a.rec, err = recorder.New(engine)
	if err != nil {
		engine.Close()
		return err
	}

	a.renderer = chart.New(chart.DefaultDPI)
	a.metrics = metrics.New()
	a.resultPubSub = newResultPubSub()
	if len(a.site.KafkaBrokers) > 0 {
		slog.Debug("publishing results to kafka", "brokers", a.site.KafkaBrokers, "topic", a.site.KafkaTopic)
		a.publisher = publish.New(a.site.KafkaBrokers, a.site.KafkaTopic)
	}
	return nil
}

func main() {
	// Values from .env never override the environment.
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.SiteConfig, "config", cfg.SiteConfig, "Site configuration file (ini).")
	flag.StringVar(&cfg.InstanceConfig, "instances", cfg.InstanceConfig, "Instance configuration file (yaml).")
	flag.DurationVar(&cfg.Rate, "rate", cfg.Rate, "Acquisition rate in watch mode.")
	flag.Parse()

	logOpts := slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		logOpts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &logOpts)))
	slog.Debug("jobeff started", "version", buildVersion, "dateBuilt", buildDate, "commitBuilt", buildCommit)

	if *showVersion {
		fmt.Printf("jobeff %v git-%v. Built %v\n", buildVersion, buildCommit, buildDate)
		os.Exit(0)
	}
	if cfg.Rate <= 0 {
		slog.Error("rate must be positive", "rate", cfg.Rate)
		os.Exit(1)
	}

	var app app
	err = app.setup(cfg)
	if err != nil {
		slog.Error("failed to start", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if *useHTTPServer {
		app.startServer(ctx)
		return
	}

	err = app.runAndPrint(ctx)
	if err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	if !*watch {
		return
	}

	ticker := time.NewTicker(cfg.Rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\njobeff exiting...\n")
			return
		case <-ticker.C:
			err := app.runAndPrint(ctx)
			if err != nil {
				slog.Error("run failed", "err", err)
			}
		}
	}
}

// instanceNames is used in log lines.
func instanceNames(instances []config.Instance) string {
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name
	}
	return strings.Join(names, ",")
}

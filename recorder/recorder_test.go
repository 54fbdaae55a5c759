package recorder

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/database"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "results.db")
	db, err := database.Connect(map[string]string{"url": "sqlite:///" + fn}, false)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	r, err := New(db)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordResult(t *testing.T) {
	r := newTestRecorder(t)

	_, _, err := r.LatestResult("batch")
	if !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}

	first, err := r.StartRun(time.Date(2024, 3, 9, 7, 5, 30, 500, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Errorf("expected run id")
	}
	if first.Time != time.Date(2024, 3, 9, 7, 5, 30, 0, time.UTC) {
		t.Errorf("expected run time truncated to seconds, got %v", first.Time)
	}
	second, err := r.StartRun(time.Date(2024, 3, 9, 7, 20, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Errorf("expected distinct run ids")
	}

	older := jobeff.ResultRecord{
		EffPlotFilename:    "batch_jobs_eff.png",
		RelEffPlotFilename: "batch_jobs_rel_eff.png",
		ResultTimestamp:    1709967900,
		SourceURL:          "http://example.org/qstat.xml",
		Status:             1.0,
	}
	newer := jobeff.ResultRecord{
		ResultTimestamp: 1709968800,
		SourceURL:       "http://example.org/qstat.xml",
		Status:          1.0,
	}
	for _, tc := range []struct {
		run jobeff.Run
		rec jobeff.ResultRecord
	}{
		{run: first, rec: older},
		{run: second, rec: newer},
	} {
		err = r.RecordResult(tc.run, "batch", tc.rec)
		if err != nil {
			t.Fatalf("failed to record result: %v", err)
		}
	}
	err = r.RecordResult(first, "batch", older)
	if err == nil {
		t.Errorf("expected error recording the same instance twice in a run")
	}

	run, rec, err := r.LatestResult("batch")
	if err != nil {
		t.Fatal(err)
	}
	if run != second {
		t.Errorf("expected latest run %v, got %v", second, run)
	}
	if rec != newer {
		t.Errorf("expected %+v, got %+v", newer, rec)
	}

	_, _, err = r.LatestResult("other")
	if !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult for other instance, got %v", err)
	}
}

func TestCompleteRun(t *testing.T) {
	r := newTestRecorder(t)
	run, err := r.StartRun(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	err = r.CompleteRun(run, RunStatusDone)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	var status string
	err = r.db.QueryRow("SELECT status FROM hf_runs WHERE id = ?", run.ID).Scan(&status)
	if err != nil || status != RunStatusDone {
		t.Errorf("expected status %v, got %v (err=%v)", RunStatusDone, status, err)
	}

	err = r.CompleteRun(jobeff.Run{ID: "missing"}, RunStatusFailed)
	if err == nil {
		t.Errorf("expected error for unknown run")
	}
}

func TestMigrateTwice(t *testing.T) {
	r := newTestRecorder(t)
	if err := r.migrate(); err != nil {
		t.Errorf("expected migrate to be repeatable, got %v", err)
	}
}

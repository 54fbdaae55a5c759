package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/database"
	"github.com/happyface/jobeff/efficiency"
)

var ErrNoResult = errors.New("no result recorded")

const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

type Recorder struct {
	db *database.Engine
}

func New(db *database.Engine) (*Recorder, error) {
	r := Recorder{db: db}
	err := r.migrate()
	if err != nil {
		return nil, fmt.Errorf("failed to migrate %v db: %w", db.Driver, err)
	}
	return &r, nil
}

func (r *Recorder) migrate() error {
	var err error
	_, err = r.db.Exec(`
	CREATE TABLE IF NOT EXISTS hf_runs (
		id VARCHAR(64) PRIMARY KEY,
		run_time BIGINT NOT NULL,
		completed_time BIGINT,
		status VARCHAR(16) NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create hf_runs table: %w", err)
	}

	_, err = r.db.Exec(`
	CREATE TABLE IF NOT EXISTS ` + efficiency.ResultTable + ` (
		run_id VARCHAR(64) NOT NULL,
		instance VARCHAR(255) NOT NULL,
		status DOUBLE PRECISION NOT NULL,
		source_url TEXT NOT NULL,
		` + efficiency.ColumnEffPlot + ` TEXT NOT NULL,
		` + efficiency.ColumnRelEffPlot + ` TEXT NOT NULL,
		` + efficiency.ColumnResultTimestamp + ` BIGINT NOT NULL,
		PRIMARY KEY (run_id, instance)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %v table: %w", efficiency.ResultTable, err)
	}

	return nil
}

// StartRun records a new run at t. The run time is kept with second
// precision.
func (r *Recorder) StartRun(t time.Time) (jobeff.Run, error) {
	run := jobeff.Run{
		ID:   uuid.NewString(),
		Time: time.Unix(t.Unix(), 0).UTC(),
	}
	_, err := r.db.Exec(r.db.Rebind(`
		INSERT INTO hf_runs (id, run_time, status)
		VALUES (?, ?, ?)
		`), run.ID, run.Time.Unix(), RunStatusRunning)
	if err != nil {
		return jobeff.Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

func (r *Recorder) CompleteRun(run jobeff.Run, status string) error {
	res, err := r.db.Exec(r.db.Rebind(`
		UPDATE hf_runs
		SET completed_time = ?, status = ?
		WHERE id = ?
		`), time.Now().Unix(), status, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run %v: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("failed to complete run %v: no such run", run.ID)
	}
	return nil
}

func (r *Recorder) RecordResult(run jobeff.Run, instance string, rec jobeff.ResultRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to create transaction to record result: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	_, err = tx.Exec(r.db.Rebind(`
		INSERT INTO `+efficiency.ResultTable+` (
			run_id, instance, status, source_url,
			`+efficiency.ColumnEffPlot+`,
			`+efficiency.ColumnRelEffPlot+`,
			`+efficiency.ColumnResultTimestamp+`
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		`), run.ID, instance, rec.Status, rec.SourceURL,
		rec.EffPlotFilename, rec.RelEffPlotFilename,
		rec.ResultTimestamp)
	if err != nil {
		return fmt.Errorf("failed to record result of %v: %w", instance, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit result of %v: %w", instance, err)
	}
	return nil
}

// LatestResult returns the result of instance from the most recent run that
// recorded one.
func (r *Recorder) LatestResult(instance string) (jobeff.Run, jobeff.ResultRecord, error) {
	var run jobeff.Run
	var rec jobeff.ResultRecord
	var runTime int64
	err := r.db.QueryRow(r.db.Rebind(`
		SELECT
			h.id, h.run_time,
			r.status, r.source_url,
			r.`+efficiency.ColumnEffPlot+`,
			r.`+efficiency.ColumnRelEffPlot+`,
			r.`+efficiency.ColumnResultTimestamp+`
		FROM `+efficiency.ResultTable+` r
		JOIN hf_runs h ON h.id = r.run_id
		WHERE r.instance = ?
		ORDER BY h.run_time DESC
		LIMIT 1
		`), instance).Scan(
		&run.ID, &runTime,
		&rec.Status, &rec.SourceURL,
		&rec.EffPlotFilename, &rec.RelEffPlotFilename,
		&rec.ResultTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return run, rec, fmt.Errorf("%w for %v", ErrNoResult, instance)
	}
	if err != nil {
		return run, rec, fmt.Errorf("failed to fetch result of %v: %w", instance, err)
	}
	run.Time = time.Unix(runTime, 0).UTC()
	return run, rec, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

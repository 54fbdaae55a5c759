package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/happyface/jobeff"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w}
	run := jobeff.Run{ID: "run-1", Time: time.Date(2024, 3, 9, 7, 5, 0, 0, time.UTC)}
	rec := jobeff.ResultRecord{
		EffPlotFilename:    "batch_jobs_eff.png",
		RelEffPlotFilename: "batch_jobs_rel_eff.png",
		ResultTimestamp:    1709967900,
		SourceURL:          "http://example.org/qstat.xml",
		Status:             1.0,
	}
	err := p.Publish(context.Background(), run, "batch", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %v", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "batch" {
		t.Errorf("expected key batch, got %q", msg.Key)
	}
	var got Result
	err = json.Unmarshal(msg.Value, &got)
	if err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	expected := Result{
		RunID:           "run-1",
		RunTime:         run.Time,
		Instance:        "batch",
		Status:          1.0,
		SourceURL:       "http://example.org/qstat.xml",
		EffPlot:         "batch_jobs_eff.png",
		RelEffPlot:      "batch_jobs_rel_eff.png",
		ResultTimestamp: 1709967900,
	}
	if !got.RunTime.Equal(expected.RunTime) {
		t.Errorf("expected run time %v, got %v", expected.RunTime, got.RunTime)
	}
	got.RunTime = expected.RunTime
	if got != expected {
		t.Errorf("expected %+v, got %+v", expected, got)
	}

	var raw map[string]any
	json.Unmarshal(msg.Value, &raw) // nolint: errcheck
	for _, k := range []string{"filename_eff_plot", "filename_rel_eff_plot", "result_timestamp"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("expected key %v in message", k)
		}
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("expected writer to be closed")
	}
}

func TestPublishError(t *testing.T) {
	broken := errors.New("broker down")
	p := &Publisher{w: &fakeWriter{err: broken}}
	err := p.Publish(context.Background(), jobeff.Run{}, "batch", jobeff.ResultRecord{})
	if !errors.Is(err, broken) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

// Package publish announces finished results on a kafka topic so that other
// dashboard components can pick up new plots without polling the database.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/happyface/jobeff"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Result is the message value, one per instance and run.
type Result struct {
	RunID           string    `json:"run_id"`
	RunTime         time.Time `json:"run_time"`
	Instance        string    `json:"instance"`
	Status          float64   `json:"status"`
	SourceURL       string    `json:"source_url"`
	EffPlot         string    `json:"filename_eff_plot"`
	RelEffPlot      string    `json:"filename_rel_eff_plot"`
	ResultTimestamp int64     `json:"result_timestamp"`
}

type Publisher struct {
	w messageWriter
}

func New(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish sends one result keyed by instance, so that results of the same
// instance stay ordered.
func (p *Publisher) Publish(ctx context.Context, run jobeff.Run, instance string, rec jobeff.ResultRecord) error {
	b, err := json.Marshal(Result{
		RunID:           run.ID,
		RunTime:         run.Time,
		Instance:        instance,
		Status:          rec.Status,
		SourceURL:       rec.SourceURL,
		EffPlot:         rec.EffPlotFilename,
		RelEffPlot:      rec.RelEffPlotFilename,
		ResultTimestamp: rec.ResultTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to encode result of %v: %w", instance, err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(instance),
		Value: b,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish result of %v: %w", instance, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// SnapshotEvent announces a finished run to downstream consumers.
type SnapshotEvent struct {
	RunID        string           `json:"run_id"`
	RunDate      string           `json:"run_date"`
	Status       models.RunStatus `json:"status"`
	TestMode     bool             `json:"test_mode"`
	Rows         int              `json:"rows"`
	ArtifactPath string           `json:"artifact_path,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// NewSnapshotEvent builds the event published for run.
func NewSnapshotEvent(run *models.ScrapeRun) SnapshotEvent {
	return SnapshotEvent{
		RunID:        run.ID,
		RunDate:      run.RunDate,
		Status:       run.Status,
		TestMode:     run.TestMode,
		Rows:         run.Extracted,
		ArtifactPath: run.ArtifactPath,
		FinishedAt:   run.FinishedAt,
	}
}

// messageWriter is the part of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes a SnapshotEvent per run, keyed by run date so
// events of one day share a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) NotifyRun(ctx context.Context, run *models.ScrapeRun) error {
	data, err := json.Marshal(NewSnapshotEvent(run))
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(run.RunDate),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish snapshot event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

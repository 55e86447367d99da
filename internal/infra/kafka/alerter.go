package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"

	"github.com/kislikjeka/moneyguard/internal/platform/alert"
)

// messageWriter is the part of *kafka.Writer the alerter uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Alerter publishes alerts to a Kafka topic for the on-call pipeline
type Alerter struct {
	writer  messageWriter
	timeout time.Duration
}

var _ alert.Alerter = (*Alerter)(nil)

// NewAlerter creates an alerter writing to topic on brokers
func NewAlerter(brokers []string, topic string) *Alerter {
	return &Alerter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: 5 * time.Second,
	}
}

func newAlerterWithWriter(w messageWriter) *Alerter {
	return &Alerter{writer: w, timeout: 5 * time.Second}
}

// Notify implements alert.Alerter. Alerts from one source share a partition key so they stay ordered.
func (a *Alerter) Notify(ctx context.Context, al alert.Alert) error {
	data, err := json.Marshal(al)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(al.Source),
		Value: data,
		Time:  al.RaisedAt,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(ulid.Make().String())},
			{Key: "severity", Value: []byte(al.Severity)},
		},
	}
	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close flushes pending writes
func (a *Alerter) Close() error {
	return a.writer.Close()
}

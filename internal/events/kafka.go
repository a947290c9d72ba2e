// Package events publishes checkout outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrDisabled = errors.New("kafka disabled")

// CheckoutFinished is published once per checkout attempt.
type CheckoutFinished struct {
	EventID       string    `json:"event_id"`
	CheckoutID    string    `json:"checkout_id"`
	ReceiptNumber string    `json:"receipt_number"`
	State         string    `json:"state"`
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	Errors        []string  `json:"errors"`
	FinishedAt    time.Time `json:"finished_at"`
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes checkout events to one topic. A publisher without
// brokers is disabled and returns ErrDisabled.
type Publisher struct {
	writer MessageWriter
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewPublisher creates a publisher for topic on the given brokers.
func NewPublisher(brokersCSV, topic string) *Publisher {
	brokers := ParseBrokers(brokersCSV)
	if len(brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// PublishCheckoutFinished writes e keyed by checkout id so every event of
// one checkout lands on the same partition.
func (p *Publisher) PublishCheckoutFinished(ctx context.Context, e CheckoutFinished) error {
	if !p.Enabled() {
		return ErrDisabled
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.CheckoutID),
		Value: data,
		Time:  time.Now().UTC(),
	})
}

func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.writer.Close()
}

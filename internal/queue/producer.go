// Package queue wraps a Kafka-compatible bus for reliable, decoupled
// message passing between Intake, the Search Stage Worker, and the
// Analysis Stage Worker.
//
// Durability guarantees:
//   - Topics carry JSON payloads, compressed on the wire.
//   - Producer connects with exponential backoff, bounded attempts, fatal
//     to startup after exhaustion.
//   - Consumer disables auto-commit — a message's offset only advances
//     after the worker has durably written its Ledger side effects
//     (manual commit is the property that ties offset advance to Ledger
//     durability, spec §4.7).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Task is the payload carried by both search-queue and analyze-queue.
// phase is only meaningful on the analyze queue; it is empty/omitted on
// search-queue messages.
type Task struct {
	RequestID string `json:"request_id"`
	Topic     string `json:"topic"`
	Phase     string `json:"phase,omitempty"`
}

const (
	maxConnectRetries = 10
	initialRetryDelay = 2 * time.Second
)

// Producer owns a bus connection for publishing tasks.
type Producer struct {
	client *kgo.Client
}

// NewProducer dials the bus with exponential backoff, aborting startup if
// every attempt fails.
func NewProducer(brokers []string) (*Producer, error) {
	client, err := dialWithRetry(brokers, nil)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client}, nil
}

// Publish sends a Task to the named topic as compressed JSON.
func (p *Producer) Publish(ctx context.Context, topic string, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(task.RequestID),
		Value: body,
	}

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("queue: publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}

// dialWithRetry connects to the bus, retrying with exponential backoff up
// to maxConnectRetries times before giving up.
func dialWithRetry(brokers []string, extraOpts []kgo.Opt) (*kgo.Client, error) {
	opts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
	}, extraOpts...)

	delay := initialRetryDelay
	var lastErr error
	for attempt := 1; attempt <= maxConnectRetries; attempt++ {
		client, err := kgo.NewClient(opts...)
		if err == nil {
			if pingErr := client.Ping(context.Background()); pingErr == nil {
				slog.Info("bus connected", "component", "queue", "attempt", attempt)
				return client, nil
			} else {
				client.Close()
				err = pingErr
			}
		}
		lastErr = err
		slog.Warn("bus connect failed, retrying", "component", "queue", "attempt", attempt, "delay", delay, "error", err)
		time.Sleep(delay)
		delay *= 2
	}
	return nil, fmt.Errorf("queue: connect after %d attempts: %w", maxConnectRetries, lastErr)
}

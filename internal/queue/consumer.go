package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one decoded Task paired with the raw record needed to commit
// its offset.
type Message struct {
	Task Task
	raw  *kgo.Record
}

// Consumer subscribes to a single topic under a named consumer group, with
// auto-commit disabled. It models a restartable lazy sequence: Next blocks
// until a message is available or the context is cancelled, in which case
// the sequence terminates cleanly after any in-flight message. Commit is a
// separate, explicit operation — the load-bearing property that lets a
// worker tie offset advance to Ledger durability (spec §4.7).
type Consumer struct {
	client *kgo.Client
	topic  string
	group  string

	buf []*kgo.Record
}

// NewConsumer dials the bus with exponential backoff and subscribes to
// topic under group, reading from the earliest unacknowledged offset.
func NewConsumer(brokers []string, topic, group string) (*Consumer, error) {
	client, err := dialWithRetry(brokers, []kgo.Opt{
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(time.Second),
	})
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, topic: topic, group: group}, nil
}

// Next blocks until a message is available, the context is cancelled, or a
// fetch error occurs. ok is false once the sequence has terminated — the
// caller's consume loop should return after that, having drained any
// message it already received.
func (c *Consumer) Next(ctx context.Context) (msg Message, ok bool, err error) {
	for len(c.buf) == 0 {
		select {
		case <-ctx.Done():
			return Message{}, false, nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return Message{}, false, nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return Message{}, false, fmt.Errorf("queue: poll fetches: %w", errs[0].Err)
		}

		fetches.EachRecord(func(r *kgo.Record) {
			c.buf = append(c.buf, r)
		})
	}

	r := c.buf[0]
	c.buf = c.buf[1:]

	var task Task
	if err := json.Unmarshal(r.Value, &task); err != nil {
		// Unparseable messages can never become valid: commit past them so
		// they don't block the queue, rather than treat this as fatal.
		slog.Error("discarding unparseable message", "component", "queue", "topic", c.topic, "error", err)
		c.client.MarkCommitRecords(r)
		if commitErr := c.client.CommitMarkedOffsets(ctx); commitErr != nil {
			slog.Error("commit of discarded message failed", "component", "queue", "error", commitErr)
		}
		return c.Next(ctx)
	}

	return Message{Task: task, raw: r}, true, nil
}

// Commit advances the consumer group's offset past msg. It must be called
// only after the durable side effects of processing msg are committed to
// the Ledger (spec §4.4 step 8, §4.5 step 7).
func (c *Consumer) Commit(ctx context.Context, msg Message) error {
	if err := c.client.CommitRecords(ctx, msg.raw); err != nil {
		return fmt.Errorf("queue: commit offset: %w", err)
	}
	return nil
}

// Close releases the underlying client. Leaving the consumer group happens
// automatically on close.
func (c *Consumer) Close() {
	c.client.Close()
}

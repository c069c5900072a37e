// Package events publishes scan progress and result changes to in-process subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic is the watermill topic all scan events are published on.
const Topic = "sweep.events"

// Type identifies what happened.
type Type string

// Event types.
const (
	ScanStarted    Type = "scan.started"
	ScanPlanned    Type = "scan.planned"
	ResultInserted Type = "result.inserted"
	ResultRemoved  Type = "result.removed"
	ItemSkipped    Type = "item.skipped"
	ItemFailed     Type = "item.failed"
	ScanFinished   Type = "scan.finished"
)

// Event describes one change. Fields that do not apply to Type are empty.
type Event struct {
	Time       time.Time `json:"time"`
	Type       Type      `json:"type"`
	ScanID     string    `json:"scan_id"`
	Directory  string    `json:"directory,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Error      string    `json:"error,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Total      int       `json:"total,omitempty"`
}

// Bus is an in-process pub/sub for events backed by a watermill go channel.
// Publish blocks until every subscriber has accepted the event, so
// subscribers observe events in publish order.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		newWatermillLogger(logger),
	)

	return &Bus{pubSub: pubSub, logger: logger}
}

// newWatermillLogger routes watermill's logs through logger. Its info lines
// (one per message published with no subscriber) are demoted to debug.
func newWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLoggerWithLevelMapping(logger, map[slog.Level]slog.Level{
		slog.LevelInfo: slog.LevelDebug,
	})
}

// Publish stamps and sends an event to all current subscribers.
func (b *Bus) Publish(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe returns a channel of events published after the call. The
// channel is closed when ctx is canceled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("Dropping malformed event", "error", err)
				msg.Ack()
				continue
			}

			select {
			case out <- ev:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				return
			}
		}
	}()

	return out, nil
}

// Close shuts down the bus and closes all subscriptions.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/gate"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/notify"
	"github.com/your-org/facegate/internal/pipeline"
)

// EventProcessor handles one inbound detection event end to end.
type EventProcessor interface {
	Process(ctx context.Context, ev models.DetectionEvent) error
}

// ErrorSink receives processing failures for downstream visibility.
type ErrorSink interface {
	PublishError(ctx context.Context, eventID string, procErr error) error
}

// Consumer pulls detection events off the EVENTS stream and feeds them to the
// pipeline.
type Consumer struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	sink ErrorSink
}

func NewConsumer(natsURL string, sink ErrorSink) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js, sink: sink}, nil
}

// ConsumeEvents starts consuming detection events. workerCount determines how
// many events are processed concurrently; the admission gate serializes per
// camera regardless.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, proc EventProcessor, workerCount int) error {
	stream, err := c.js.Stream(ctx, notify.EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", notify.EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    3,
		FilterSubject: notify.EventsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		for {
			select {
			case <-ctx.Done():
				close(msgCh)
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					close(msgCh)
					return
				}
				slog.Warn("fetch events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					close(msgCh)
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				c.handle(ctx, workerID, proc, msg)
			}
		}(i)
	}

	slog.Info("event consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func (c *Consumer) handle(ctx context.Context, workerID int, proc EventProcessor, msg jetstream.Msg) {
	var ev models.DetectionEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		slog.Error("unparseable detection event", "worker", workerID, "subject", msg.Subject(), "error", err)
		_ = msg.Ack()
		return
	}

	err := proc.Process(ctx, ev)
	if err == nil {
		_ = msg.Ack()
		return
	}

	var rej *gate.RejectionError
	if errors.As(err, &rej) {
		slog.Debug("event rejected", "worker", workerID, "event", ev.ID, "reason", rej.Reason)
		_ = msg.Ack()
		return
	}

	var cfgErr *pipeline.ConfigurationError
	if errors.As(err, &cfgErr) {
		// Redelivery cannot fix a configuration problem.
		slog.Error("event dropped", "worker", workerID, "event", ev.ID, "error", err)
		c.reportError(ctx, ev.ID, err)
		_ = msg.Ack()
		return
	}

	slog.Error("process event error", "worker", workerID, "event", ev.ID, "error", err)
	c.reportError(ctx, ev.ID, err)
	_ = msg.Nak()
}

func (c *Consumer) reportError(ctx context.Context, eventID string, procErr error) {
	if c.sink == nil {
		return
	}
	if err := c.sink.PublishError(ctx, eventID, procErr); err != nil {
		slog.Warn("publish processing error", "event", eventID, "error", err)
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/queue-monitor/internal/monitor/recorder"
	"github.com/cuongbtq/queue-monitor/shared/rabbitmq"
)

// Config holds consumer dependencies.
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Recorder      *recorder.Recorder
	PrefetchCount int
}

// Consumer feeds broker-delivered lifecycle events into the recorder.
type Consumer struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	recorder      *recorder.Recorder
	prefetchCount int
	consumerTag   string
}

// NewConsumer creates a consumer with a unique consumer tag.
func NewConsumer(cfg *Config) *Consumer {
	return &Consumer{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		recorder:      cfg.Recorder,
		prefetchCount: cfg.PrefetchCount,
		consumerTag:   "queue-monitor-" + uuid.New().String(),
	}
}

// Start consumes lifecycle events until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	channel := c.rabbitClient.GetChannel()
	if channel == nil {
		return fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(c.prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.rabbitClient.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Event consumer started",
		slog.String("consumer_tag", c.consumerTag),
		slog.Int("prefetch_count", c.prefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Event consumer stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return nil
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var envelope Envelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		c.logger.Error("Failed to parse event JSON",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery, false)
		return
	}

	if err := envelope.Validate(); err != nil {
		c.logger.Error("Invalid event envelope",
			slog.String("error", err.Error()),
			slog.String("type", envelope.Type),
		)
		c.nack(delivery, false)
		return
	}

	if err := c.dispatch(ctx, &envelope); err != nil {
		c.logger.Error("Failed to record event",
			slog.String("type", envelope.Type),
			slog.String("sender", envelope.Sender),
			slog.String("job_uid", envelope.JobUID),
			slog.String("error", err.Error()),
		)
		// Storage failures are usually transient; give the event one
		// redelivery before dropping it.
		c.nack(delivery, !delivery.Redelivered)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK event",
			slog.String("type", envelope.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) dispatch(ctx context.Context, e *Envelope) error {
	switch e.Type {
	case TypePush:
		_, err := c.recorder.RecordPush(ctx, recorder.PushEvent{
			SenderName: e.Sender,
			JobUID:     e.JobUID,
			JobClass:   e.JobClass,
			JobData:    e.JobData,
			Context:    e.Context,
			TTR:        e.TTR,
			Delay:      e.Delay,
		})
		return err
	case TypeExecDone:
		return c.recorder.EndExecSuccess(ctx, e.Sender, e.JobUID)
	case TypeWorkerStart:
		_, err := c.recorder.WorkerStart(ctx, e.Sender, e.Host, e.Pid)
		return err
	case TypeWorkerStop:
		return c.recorder.WorkerStop(ctx, e.Host, e.Pid)
	case TypeWorkerPing:
		return c.recorder.WorkerPing(ctx, e.Host, e.Pid)
	}
	return fmt.Errorf("unknown event type %q", e.Type)
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK event",
			slog.String("error", err.Error()),
		)
	}
}

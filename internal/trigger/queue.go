package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"claimsync/internal/config"
	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
)

// Consumer drives the supervisor from the scheduler's RabbitMQ queue.
// Messages carry the same Request JSON the HTTP API accepts.
type Consumer struct {
	launcher Launcher
	config   config.QueueConfig
	logger   observability.Logger
	metrics  observability.Metrics
	conn     *amqp.Connection
	channel  *amqp.Channel
}

// NewConsumer creates the queue consumer.
func NewConsumer(
	launcher Launcher,
	cfg config.QueueConfig,
	logger observability.Logger,
	metrics observability.Metrics,
) *Consumer {
	return &Consumer{
		launcher: launcher,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start connects, declares the queue and consumes until the delivery
// channel closes or ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = ch

	// One message at a time; job launches are cheap and the unique
	// index handles scope contention anyway.
	if err := ch.Qos(1, 0, false); err != nil {
		c.close()
		return fmt.Errorf("set QoS: %w", err)
	}

	q, err := ch.QueueDeclare(
		c.config.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		c.close()
		return fmt.Errorf("declare queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		c.close()
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info(ctx, "queue consumer started", observability.Fields{
		"queue": c.config.Queue,
	})

	for {
		select {
		case <-ctx.Done():
			c.close()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.process(ctx, msg)
		}
	}
}

// Stop closes the connection, which also ends the consume loop.
func (c *Consumer) Stop() {
	c.close()
	c.logger.Info(context.Background(), "queue consumer stopped", nil)
}

func (c *Consumer) close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// process handles one delivery. Malformed payloads are dropped, scope
// conflicts are acknowledged as intentional skips, and only transient
// launch failures go back on the queue.
func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.logger.Error(ctx, "dropping malformed trigger message", err, observability.Fields{
			"queue": c.config.Queue,
		})
		c.metrics.RecordError("queue_trigger", "malformed")
		c.nack(ctx, msg, false)
		return
	}
	if err := req.Validate(); err != nil {
		c.logger.Error(ctx, "dropping invalid trigger message", err, observability.Fields{
			"scope_key": req.ScopeKey(),
		})
		c.metrics.RecordError("queue_trigger", "invalid")
		c.nack(ctx, msg, false)
		return
	}

	job, err := c.launcher.Launch(ctx, req.Type(), req.Subtype(),
		req.ScopeKey(), entity.TriggerSchedule, req.Params())
	switch {
	case err == nil:
		c.logger.Info(ctx, "job launched from queue", observability.Fields{
			"job_id":    job.ID,
			"scope_key": req.ScopeKey(),
		})
		c.metrics.RecordSuccess("queue_trigger")
		c.metrics.RecordDuration("queue_trigger", time.Since(start).Seconds())
		c.ack(ctx, msg)

	case domain.IsKind(err, domain.KindConflict):
		// A scheduled trigger landing on an already-running scope is a
		// normal skip, not a failure; requeueing would loop forever.
		c.logger.Info(ctx, "trigger skipped, scope busy", observability.Fields{
			"scope_key": req.ScopeKey(),
		})
		c.metrics.RecordError("queue_trigger", "conflict")
		c.ack(ctx, msg)

	default:
		requeue := !msg.Redelivered
		c.logger.Error(ctx, "trigger launch failed", err, observability.Fields{
			"scope_key": req.ScopeKey(),
			"requeued":  requeue,
		})
		c.metrics.RecordError("queue_trigger", "launch")
		c.nack(ctx, msg, requeue)
	}
}

func (c *Consumer) ack(ctx context.Context, msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		c.logger.Error(ctx, "ack failed", err, nil)
	}
}

func (c *Consumer) nack(ctx context.Context, msg amqp.Delivery, requeue bool) {
	if err := msg.Nack(false, requeue); err != nil {
		c.logger.Error(ctx, "nack failed", err, nil)
	}
}

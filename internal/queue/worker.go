package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/threadgraph/internal/stages"
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// ErrStopped is returned by Worker.Run after a fatal job error.
var ErrStopped = errors.New("worker stopped after fatal error")

// Worker consumes every stage queue over one channel with prefetch 1, so
// exactly one job runs at a time.
type Worker struct {
	Conn    *amqp091.Connection
	Handler *Handler
}

type delivery struct {
	msg       amqp091.Delivery
	queueName string
}

// Run blocks until ctx is done or a job fails fatally.
func (w *Worker) Run(ctx context.Context) error {
	consumerCh, err := w.Conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	publishCh, err := w.Conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}
	defer publishCh.Close()
	pub := ChannelPublisher{Ch: publishCh}
	if w.Handler.Publisher == nil {
		w.Handler.Publisher = pub
	}

	deliveries := make(chan delivery)
	for _, queueName := range Names() {
		msgs, err := consumerCh.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
		}

		go func(qName string, msgs <-chan amqp091.Delivery) {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					select {
					case deliveries <- delivery{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	logger.Info("Listening for messages")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping message processor")
			return nil
		case d := <-deliveries:
			if err := w.process(ctx, pub, d); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, pub Publisher, d delivery) error {
	startTime := time.Now()
	stage, ok := StageOf(d.queueName)
	if !ok {
		Reject(pub, d.msg, d.queueName, true)
		return nil
	}
	source := string(d.msg.Body)
	logger.Info("Received message", "queue", d.queueName, "source", source)

	err := w.Handler.Handle(ctx, stage, source)
	if model := w.Handler.Deps.Model; model != nil {
		metrics := model.GetMetrics()
		logger.Info(
			"AI Metrics",
			"input_tokens", metrics.InputTokens,
			"output_tokens", metrics.OutputTokens,
			"total_tokens", metrics.TotalTokens,
			"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
		)
		model.ResetMetrics()
	}

	if err != nil {
		fatal := stages.IsFatal(err)
		logger.Error("Error processing message", "queue", d.queueName, "source", source, "err", err)
		if ctx.Err() != nil {
			// shutdown interrupted the job; the broker redelivers it
			_ = d.msg.Nack(false, true)
			return nil
		}
		Reject(pub, d.msg, d.queueName, fatal)
		if fatal {
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
		return nil
	}

	if err := d.msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", "err", err)
	}
	logger.Info("Message processed successfully", "queue", d.queueName, "duration", formatDuration(time.Since(startTime)))
	logger.Info("Waiting for next message")
	return nil
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

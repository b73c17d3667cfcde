package queue

import (
	"github.com/OFFIS-RIT/threadgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is the number of redeliveries before a job goes to the DLQ.
const MaxRetries = 10

const retriesHeader = "x-retries"

// retries reads the retry counter. The broker may hand integers back with a
// different width than they were published with.
func retries(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// retryHeaders copies headers with the retry counter incremented.
func retryHeaders(headers amqp091.Table) amqp091.Table {
	out := amqp091.Table{}
	for k, v := range headers {
		out[k] = v
	}
	out[retriesHeader] = int32(retries(headers) + 1)
	return out
}

// deadLetter reports whether a failed job should skip the retry queue.
func deadLetter(headers amqp091.Table, fatal bool) bool {
	return fatal || retries(headers) >= MaxRetries
}

// Acknowledger is the part of an amqp091.Delivery used to settle it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Reject moves a failed delivery to the retry queue, or to the DLQ when it
// is fatal or out of retries. If publishing fails the delivery is requeued.
func Reject(p Publisher, msg amqp091.Delivery, queueName string, fatal bool) {
	reject(p, &msg, msg.Headers, msg.Body, queueName, fatal)
}

func reject(p Publisher, ack Acknowledger, headers amqp091.Table, body []byte, queueName string, fatal bool) {
	target := queueName + "_retry"
	if deadLetter(headers, fatal) {
		target = queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", target, "fatal", fatal)
	}

	var err error
	if hp, ok := p.(headerPublisher); ok {
		err = hp.PublishWithHeaders(target, body, retryHeaders(headers))
	} else {
		err = p.Publish(target, body)
	}
	if err != nil {
		logger.Error("Failed to publish failed message", "queue", target, "err", err)
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}

type headerPublisher interface {
	PublishWithHeaders(queueName string, body []byte, headers amqp091.Table) error
}

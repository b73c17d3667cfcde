package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/threadgraph/internal/util"
	"github.com/OFFIS-RIT/threadgraph/pkg/common"

	"github.com/rabbitmq/amqp091-go"
)

const retryDelay = 10 * time.Second

// Name returns the work queue of a stage.
func Name(stage common.Stage) string {
	return string(stage) + "_queue"
}

// Names lists the work queues of all stages in execution order.
func Names() []string {
	names := make([]string, 0, len(common.Stages)+1)
	for _, s := range common.Stages {
		names = append(names, Name(s))
	}
	return append(names, Name(common.StageGraph))
}

// StageOf maps a work queue back to its stage.
func StageOf(queueName string) (common.Stage, bool) {
	for _, s := range common.Stages {
		if Name(s) == queueName {
			return s, true
		}
	}
	if queueName == Name(common.StageGraph) {
		return common.StageGraph, true
	}
	return "", false
}

func Init() (*amqp091.Connection, error) {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every work queue together with its _retry queue,
// which dead-letters back into the work queue after retryDelay, and its
// _dlq queue.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare failed for %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare failed for %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare failed for %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher sends a message body to a named queue.
type Publisher interface {
	Publish(queueName string, body []byte) error
}

// ChannelPublisher publishes persistent messages through an AMQP channel.
type ChannelPublisher struct {
	Ch *amqp091.Channel
}

func (p ChannelPublisher) Publish(queueName string, body []byte) error {
	return PublishFIFO(p.Ch, queueName, body, nil)
}

func (p ChannelPublisher) PublishWithHeaders(queueName string, body []byte, headers amqp091.Table) error {
	return PublishFIFO(p.Ch, queueName, body, headers)
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "text/plain",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

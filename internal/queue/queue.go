package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	MergeQueue          = "merge_queue"
	MergeResourcesQueue = "merge_resources_queue"
	IsolateQueue        = "isolate_queue"
	PruneQueue          = "prune_queue"
	ExportQueue         = "export_queue"
)

// Queues lists every work queue the worker consumes.
var Queues = []string{MergeQueue, MergeResourcesQueue, IsolateQueue, PruneQueue, ExportQueue}

const (
	eventExchange = "amphora_events"
	retryDelayMs  = int32(10000)
)

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	return conn
}

// SetupQueues declares every queue with its _dlq and its _retry queue, which
// dead-letters back into the work queue after a delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	if err := ch.ExchangeDeclare(eventExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", eventExchange, err)
	}

	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryDelayMs,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher is the part of *amqp091.Channel used to publish messages.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func PublishFIFO(ch Publisher, queueName string, data []byte) error {
	return ch.Publish("", queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// PublishTopic publishes an event on the event exchange.
func PublishTopic(ch Publisher, topic string, data []byte) error {
	return ch.Publish(eventExchange, topic, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

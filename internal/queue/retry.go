package queue

import (
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is how often a failed message is retried before it is moved to
// the dead-letter queue.
const MaxRetries = 10

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError republishes msg to the retry queue of queueName with
// an incremented x-retries header, or to the dead-letter queue once
// MaxRetries is reached. The original delivery is acked only after the copy
// was published.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string) {
	retries := retryCount(msg.Headers)

	if retries >= MaxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		pubErr := ch.Publish("", dlqName, false, false, amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
		})
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish("", retryName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// Package rabbitbus is the RabbitMQ-backed bus.Bus, grounded on the
// teacher's internal/adapter/rabbit producer/consumer shape: one topic
// exchange, routing keys derived from the slash-separated topic path, retry
// on publish, per-message goroutine dispatch on consume.
package rabbitbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/fleetcore/dispatch/internal/bus"
	"github.com/fleetcore/dispatch/pkg/logger"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/pkg/metrics"
	"github.com/fleetcore/dispatch/pkg/rabbit"
)

const DispatchExchange = "dispatch_topic"

const metricsService = "dispatch-engine"

type Bus struct {
	client   *rabbit.RabbitMQ
	exchange string
	log      logger.Logger
}

func New(client *rabbit.RabbitMQ, log logger.Logger) (*Bus, error) {
	if err := client.Channel.ExchangeDeclare(
		DispatchExchange, amqp091.ExchangeTopic, true, false, false, false, nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Bus{client: client, exchange: DispatchExchange, log: log}, nil
}

// routingKey maps a slash-separated topic path onto an AMQP routing key,
// translating the MQTT-style single-segment wildcard `+` to AMQP's `*`.
func routingKey(topic string) string {
	key := strings.ReplaceAll(topic, "/", ".")
	key = strings.ReplaceAll(key, "+", "*")
	return key
}

func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	const op = "rabbitbus.Publish"
	ctx = wrap.WithAction(ctx, "bus_publish")

	if err := b.client.EnsureConnection(ctx); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: marshal: %w", op, err))
	}

	key := routingKey(topic)
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		lastErr = b.client.Channel.PublishWithContext(ctx, b.exchange, key, false, false, amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		})
		if lastErr == nil {
			metrics.RecordRabbitMQPublish(metricsService, topic, nil)
			return nil
		}
		time.Sleep(time.Second)
	}
	metrics.RecordRabbitMQPublish(metricsService, topic, lastErr)
	return wrap.Error(ctx, fmt.Errorf("%s: publish %s after retries: %w", op, topic, lastErr))
}

func (b *Bus) Subscribe(ctx context.Context, topicPattern string, handler bus.Handler) error {
	const op = "rabbitbus.Subscribe"
	ctx = wrap.WithAction(ctx, "bus_subscribe")

	key := routingKey(topicPattern)
	queueName := "dispatch." + strings.ReplaceAll(key, "*", "any")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := b.client.EnsureConnection(ctx); err != nil {
			b.log.Error(ctx, "ensure connection failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		if _, err := b.client.Channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			b.log.Error(ctx, "queue declare failed", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if err := b.client.Channel.QueueBind(queueName, key, b.exchange, false, nil); err != nil {
			b.log.Error(ctx, "queue bind failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		msgs, err := b.client.Channel.Consume(queueName, "", false, false, false, false, nil)
		if err != nil {
			b.log.Error(ctx, "consume failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		b.log.Info(ctx, "subscribed", "topic", topicPattern, "queue", queueName)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					b.log.Warn(ctx, "delivery channel closed, reconnecting", "queue", queueName)
					time.Sleep(2 * time.Second)
					break consumeLoop
				}

				go func(d amqp091.Delivery) {
					err := handler(ctx, topicPattern, d.Body)
					metrics.RecordRabbitMQConsume(metricsService, topicPattern, err)
					if err != nil {
						b.log.Error(wrap.ErrorCtx(ctx, err), fmt.Sprintf("%s: handler failed", op), err)
						_ = d.Nack(false, true)
						return
					}
					_ = d.Ack(false)
				}(msg)
			}
		}
	}
}

func (b *Bus) Close() error {
	return b.client.Close(context.Background())
}

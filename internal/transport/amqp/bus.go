package amqp

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

const EventsExchange = "loyalpay.events"

// Bus publishes domain events to a durable topic exchange, using the topic
// as routing key. Consumers bind their own queues.
type Bus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// amqp.Channel is not safe for concurrent publishing.
	mu sync.Mutex
}

func NewBus(uri string) (*Bus, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // kind
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &Bus{conn: conn, channel: ch}, nil
}

func (b *Bus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.channel.Publish(
		EventsExchange, // exchange
		topic,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

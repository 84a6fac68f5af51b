package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Channel is the part of *amqp091.Channel the sink publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSink mirrors the feed onto a RabbitMQ exchange. Each payload is
// published with its event type as the routing key.
type AMQPSink struct {
	channel  Channel
	exchange string
	timeout  time.Duration
	log      logrus.FieldLogger
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string, log logrus.FieldLogger) (*AMQPSink, *amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	return NewAMQPSink(ch, exchange, log), conn, nil
}

func NewAMQPSink(ch Channel, exchange string, log logrus.FieldLogger) *AMQPSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AMQPSink{channel: ch, exchange: exchange, timeout: 5 * time.Second, log: log}
}

// Send implements Subscriber. A failed publish loses that one event and is
// logged; the sink stays subscribed for the next one.
func (s *AMQPSink) Send(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := RoutingKey(payload)
	err := s.channel.PublishWithContext(ctx, s.exchange, key, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        payload,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"exchange":    s.exchange,
			"routing_key": key,
		}).Warn("failed to mirror feed event")
	}
	return nil
}

// RoutingKey extracts the event type of a payload, "feed.<type>".
func RoutingKey(payload []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type == "" {
		return "feed.unknown"
	}
	return "feed." + head.Type
}

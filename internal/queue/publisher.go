package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const ConnectorHeader = "x-rh-notifications-connector"

// ConnectorMessage is handed to a per-channel connector service, which reports
// the delivery outcome back through the status callback.
type ConnectorMessage struct {
	ID        string // CloudEvent id, equal to the history id
	Type      string
	Source    string
	Connector string
	OrgID     string
	Body      []byte
	Headers   map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, msg ConnectorMessage) error
	Close() error
}

type redisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewRedisPublisher writes one stream per connector, named ConnectorStreamName(stream, connector).
func NewRedisPublisher(client *redis.Client, stream string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisPublisher{client: client, stream: stream, logger: logger}
}

func (p *redisPublisher) Publish(ctx context.Context, msg ConnectorMessage) error {
	values := map[string]any{
		"ce_id":         msg.ID,
		"ce_type":       msg.Type,
		"ce_source":     msg.Source,
		ConnectorHeader: msg.Connector,
		"org_id":        msg.OrgID,
		"body":          string(msg.Body),
	}
	for k, v := range msg.Headers {
		values["header:"+k] = v
	}

	stream := ConnectorStreamName(p.stream, msg.Connector)
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd connector message (stream=%s): %w", stream, err)
	}

	p.logger.DebugContext(ctx, "connector message published", "stream", stream, "connector", msg.Connector)
	return nil
}

// Close leaves the shared client open.
func (p *redisPublisher) Close() error { return nil }

// AMQPConnection holds the RabbitMQ connection and channel.
type AMQPConnection struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
}

func DialAMQP(url string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	return &AMQPConnection{Connection: conn, Channel: ch}, nil
}

type amqpPublisher struct {
	conn     *AMQPConnection
	exchange string
	declared map[string]bool
	logger   *slog.Logger
}

// NewAMQPPublisher routes each message to a durable queue named after its connector.
func NewAMQPPublisher(conn *AMQPConnection, exchange string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &amqpPublisher{conn: conn, exchange: exchange, declared: map[string]bool{}, logger: logger}
}

func (p *amqpPublisher) Publish(ctx context.Context, msg ConnectorMessage) error {
	queue := "notifications." + msg.Connector
	if p.exchange == "" && !p.declared[queue] {
		if _, err := p.conn.Channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring queue %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	headers := amqp.Table{
		ConnectorHeader: msg.Connector,
		"org_id":        msg.OrgID,
	}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	err := p.conn.Channel.PublishWithContext(ctx, p.exchange, queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Type:         msg.Type,
		AppId:        msg.Source,
		Headers:      headers,
		Body:         msg.Body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publishing connector message: %w", err)
	}

	p.logger.DebugContext(ctx, "connector message published", "queue", queue, "connector", msg.Connector)
	return nil
}

func (p *amqpPublisher) Close() error {
	if p.conn.Channel != nil {
		if err := p.conn.Channel.Close(); err != nil {
			p.logger.Error("failed to close rabbitmq channel", "error", err)
		}
	}
	return p.conn.Connection.Close()
}

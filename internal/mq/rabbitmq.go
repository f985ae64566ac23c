package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTasks = "cleanup.exchange"
	ExchangeRetry = "cleanup.retry.exchange"
	ExchangeDLQ   = "cleanup.dlq.exchange"

	QueueTasks = "cleanup.queue"
	QueueRetry = "cleanup.retry.queue"
	QueueDLQ   = "cleanup.dlq.queue"

	RoutingTask  = "cleanup"
	RoutingRetry = "cleanup.retry"
	RoutingDLQ   = "cleanup.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn.IsClosed() || c.Channel.IsClosed()
}

// DeclareTopology declares the task, retry and dead-letter exchanges and
// queues. The retry queue dead-letters expired messages back to the task
// exchange, which is how delayed retries are implemented.
func (c *Client) DeclareTopology() error {
	for _, exchange := range []string{ExchangeTasks, ExchangeRetry, ExchangeDLQ} {
		if err := c.Channel.ExchangeDeclare(
			exchange,
			"direct",
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		{name: QueueTasks},
		{name: QueueRetry, args: amqp.Table{
			"x-dead-letter-exchange":    ExchangeTasks,
			"x-dead-letter-routing-key": RoutingTask,
		}},
		{name: QueueDLQ},
	}
	for _, q := range queues {
		if _, err := c.Channel.QueueDeclare(
			q.name,
			true,
			false,
			false,
			false,
			q.args,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := [][3]string{
		{QueueTasks, RoutingTask, ExchangeTasks},
		{QueueRetry, RoutingRetry, ExchangeRetry},
		{QueueDLQ, RoutingDLQ, ExchangeDLQ},
	}
	for _, b := range bindings {
		if err := c.Channel.QueueBind(
			b[0],
			b[1],
			b[2],
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind queue %s: %w", b[0], err)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeTasks, RoutingTask, body, "")
}

func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, RetryExpiration(delay))
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

// RetryExpiration formats a delay as a per-message TTL in milliseconds.
func RetryExpiration(delay time.Duration) string {
	if delay < 0 {
		delay = 0
	}
	return fmt.Sprintf("%d", delay.Milliseconds())
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    uuid.NewString(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		msg,
	)
}

// Publisher holds one lazily dialed client and redials it after the broker
// closes the connection.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return p.client, nil
}

// PublishTask publishes to the cleanup task queue.
func (p *Publisher) PublishTask(ctx context.Context, body []byte) error {
	client, err := p.get()
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}
	return client.PublishTask(ctx, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}

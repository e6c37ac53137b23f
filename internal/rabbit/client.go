package rabbit

import (
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// MaxDelay is the longest x-delay the delayed-message exchange accepts.
const MaxDelay = time.Duration(math.MaxInt32) * time.Millisecond

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

type Publisher interface {
	Publish(message []byte, delay time.Duration) error
}

type Broker interface {
	Publisher
	Consume(handler func([]byte) error) error
}

func NewRabbit(url, exchange, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
	}

	if err := client.declare(); err != nil {
		client.Close()
		return nil, err
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", exchange, queue)
	return client, nil
}

func (c *Client) declare() error {
	args := amqp.Table{"x-delayed-type": "direct"}
	if err := c.channel.ExchangeDeclare(c.exchange, "x-delayed-message", true, false, false, false, args); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return err
	}

	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return err
	}

	if err := c.channel.QueueBind(c.queue, "", c.exchange, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return err
	}

	// one unacked notification at a time per consumer
	if err := c.channel.Qos(1, 0, false); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to set QoS")
		return err
	}
	return nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// DelayHeader converts delay into the x-delay value, clamped to MaxDelay.
// It reports false when no delay header is needed.
func DelayHeader(delay time.Duration) (int32, bool) {
	if delay <= 0 {
		return 0, false
	}
	if delay > MaxDelay {
		delay = MaxDelay
	}
	return int32(delay / time.Millisecond), true
}

func (c *Client) Publish(message []byte, delay time.Duration) error {
	headers := amqp.Table{}
	if ms, ok := DelayHeader(delay); ok {
		headers["x-delay"] = ms
	}

	err := c.channel.Publish(
		c.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)

	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
	} else {
		zlog.Logger.Debug().Msgf("Message published to exchange=%s delay=%s", c.exchange, delay)
	}
	return err
}

func (c *Client) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				zlog.Logger.Warn().Msgf("failed to process message: %v", err)
				// redelivered once, then dropped
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)
	return nil
}

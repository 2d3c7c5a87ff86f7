package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

const (
	defaultPublishTimeout = 5 * time.Second
	contentTypeJSON       = "application/json"
)

// Client owns the broker connection: one confirm-mode channel for publishing
// plus per-consumer channels.
type Client struct {
	cfg      config.AMQPConfig
	exchange string
	logg     *logger.Logger

	conn    *amqp.Connection
	pubChan *amqp.Channel
	pubMu   sync.Mutex
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New dials the broker, switches the publish channel into confirm mode, and
// declares the shared events exchange.
func New(ctx context.Context, cfg config.AMQPConfig, msg config.MessagingConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	pubChan, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := pubChan.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	client := &Client{
		cfg:      cfg,
		exchange: msg.EventsExchange,
		logg:     logg,
		conn:     conn,
		pubChan:  pubChan,
	}

	if err := client.declareExchange(client.exchange, "topic"); err != nil {
		conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", client.exchange), "amqp connection established")
	}
	return client, nil
}

// Exchange returns the shared events exchange name.
func (c *Client) Exchange() string {
	return c.exchange
}

func (c *Client) declareExchange(name, kind string) error {
	if err := c.pubChan.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// Publish sends one persistent message and waits for the broker confirm. An
// unconfirmed publish is an error so callers can retry.
func (c *Client) Publish(ctx context.Context, exchange, routingKey, messageID string, headers amqp.Table, body []byte) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	timeout := c.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	publishCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	confirmation, err := c.pubChan.PublishWithDeferredConfirmWithContext(
		publishCtx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := confirmation.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("await publish confirm %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("publish %s not confirmed by broker", routingKey)
	}
	return nil
}

// consumerChannel opens a dedicated channel with the configured prefetch.
func (c *Client) consumerChannel() (*amqp.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	prefetch := c.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return ch, nil
}

// Ping verifies the connection is still open.
func (c *Client) Ping(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close shuts down the channel and connection.
func (c *Client) Close() error {
	if c.pubChan != nil {
		_ = c.pubChan.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

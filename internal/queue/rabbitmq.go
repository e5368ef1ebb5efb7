package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/i474232898/weather-sampler/internal/retry"
)

var errNacked = errors.New("broker nacked message")

// RabbitMQConfig locates the broker and the durable queue to publish to.
type RabbitMQConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	VHost       string
	Queue       string
	AppID       string
	DialTimeout time.Duration
	Heartbeat   time.Duration
}

// URI builds the AMQP connection string.
func (c RabbitMQConfig) URI() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// RabbitMQDialer opens confirm-mode channels on a durable queue.
type RabbitMQDialer struct {
	cfg RabbitMQConfig
}

func NewRabbitMQDialer(cfg RabbitMQConfig) *RabbitMQDialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 60 * time.Second
	}
	return &RabbitMQDialer{cfg: cfg}
}

func (d *RabbitMQDialer) Target() string {
	return fmt.Sprintf("amqp://%s:%d queue=%s", d.cfg.Host, d.cfg.Port, d.cfg.Queue)
}

func (d *RabbitMQDialer) Dial(ctx context.Context) (Session, error) {
	props := amqp.NewConnectionProperties()
	if d.cfg.AppID != "" {
		props.SetClientConnectionName(d.cfg.AppID)
	}

	conn, err := amqp.DialConfig(d.cfg.URI(), amqp.Config{
		Heartbeat:  d.cfg.Heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(d.cfg.DialTimeout),
		Properties: props,
	})
	if err != nil {
		return nil, connectError(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq confirm mode failed: %w", err)
	}

	// durable, not auto-deleted: messages survive a broker restart.
	if _, err := ch.QueueDeclare(d.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	return &rabbitSession{conn: conn, ch: ch, queue: d.cfg.Queue, appID: d.cfg.AppID}, nil
}

// connectError wraps a dial failure. Bad credentials and unknown vhosts will
// not fix themselves between attempts, so they end the connect loop at once.
func connectError(err error) error {
	wrapped := fmt.Errorf("rabbitmq connect failed: %w", err)
	if errors.Is(err, amqp.ErrCredentials) || errors.Is(err, amqp.ErrVhost) {
		return retry.Permanent(wrapped)
	}
	return wrapped
}

type rabbitSession struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	appID string
}

func (s *rabbitSession) Publish(ctx context.Context, msg Message) error {
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, "", s.queue, false, false, publishing(msg, s.appID))
	if err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	if dc == nil {
		return errors.New("rabbitmq channel is not in confirm mode")
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq confirm wait failed: %w", err)
	}
	if !ok {
		return errNacked
	}
	return nil
}

func (s *rabbitSession) IsClosed() bool {
	return s.conn.IsClosed() || s.ch.IsClosed()
}

func (s *rabbitSession) Close() error {
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	if errors.Is(chErr, amqp.ErrClosed) {
		chErr = nil
	}
	if errors.Is(connErr, amqp.ErrClosed) {
		connErr = nil
	}
	return errors.Join(chErr, connErr)
}

func publishing(msg Message, appID string) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		AppId:        appID,
		Body:         msg.Body,
	}
}

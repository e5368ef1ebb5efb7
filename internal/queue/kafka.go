package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig locates the brokers and the topic to publish to. The topic must
// already exist; it is never auto-created.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaDialer opens synchronous writers that wait for all in-sync replicas.
type KafkaDialer struct {
	cfg KafkaConfig
}

func NewKafkaDialer(cfg KafkaConfig) *KafkaDialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &KafkaDialer{cfg: cfg}
}

func (d *KafkaDialer) Target() string {
	return fmt.Sprintf("kafka://%s topic=%s", strings.Join(d.cfg.Brokers, ","), d.cfg.Topic)
}

// Dial checks that a broker is reachable and the topic exists before handing
// out a writer, so connection failures surface in the connect step.
func (d *KafkaDialer) Dial(ctx context.Context) (Session, error) {
	if len(d.cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	dialer := &kafka.Dialer{Timeout: d.cfg.DialTimeout}

	var lastErr error
	for _, broker := range d.cfg.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = fmt.Errorf("failed to dial broker %s: %w", broker, err)
			continue
		}

		partitions, err := conn.ReadPartitions(d.cfg.Topic)
		_ = conn.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read partitions of %s: %w", d.cfg.Topic, err)
			continue
		}
		if len(partitions) == 0 {
			lastErr = fmt.Errorf("topic %s has no partitions", d.cfg.Topic)
			continue
		}

		return &kafkaSession{
			writer: &kafka.Writer{
				Addr:                   kafka.TCP(d.cfg.Brokers...),
				Topic:                  d.cfg.Topic,
				Balancer:               &kafka.Hash{},
				RequiredAcks:           kafka.RequireAll,
				Async:                  false,
				MaxAttempts:            1,
				WriteTimeout:           d.cfg.WriteTimeout,
				AllowAutoTopicCreation: false,
			},
		}, nil
	}

	return nil, lastErr
}

type kafkaSession struct {
	writer *kafka.Writer
	closed atomic.Bool
}

func (s *kafkaSession) Publish(ctx context.Context, msg Message) error {
	if err := s.writer.WriteMessages(ctx, kafkaMessage(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *kafkaSession) IsClosed() bool {
	return s.closed.Load()
}

func (s *kafkaSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.writer.Close()
}

func kafkaMessage(msg Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
			{Key: "content_type", Value: []byte(msg.ContentType)},
		},
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-sampler/internal/retry"
	"github.com/i474232898/weather-sampler/internal/weather"
)

var (
	// ErrPublishConnectFailed is returned when no broker session could be
	// established within the connect policy.
	ErrPublishConnectFailed = errors.New("publish connect failed")
	// ErrPublishFailed is returned when the broker rejected the message or the
	// session broke after it was established. The reading is dropped.
	ErrPublishFailed = errors.New("publish failed")
)

// Message is one encoded reading ready for the broker.
type Message struct {
	ID          string
	Key         string
	ContentType string
	Timestamp   time.Time
	Body        []byte
}

// Session is a live, established broker connection bound to one destination.
// Publish must return only after the broker acknowledged the message.
type Session interface {
	Publish(ctx context.Context, msg Message) error
	IsClosed() bool
	Close() error
}

// Dialer opens a new Session.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
	// Target describes the destination for logs, without credentials.
	Target() string
}

// Publisher owns the broker session across cycles and (re)connects it on
// demand under a bounded retry policy.
type Publisher struct {
	mu      sync.Mutex
	dialer  Dialer
	policy  retry.Policy
	timeout time.Duration
	session Session

	// OnConnectAttempt, when set, is called after every dial attempt.
	OnConnectAttempt func(err error)
}

// NewPublisher returns a Publisher. publishTimeout bounds a single publish
// and its acknowledgement; zero means only ctx bounds it.
func NewPublisher(dialer Dialer, policy retry.Policy, publishTimeout time.Duration) *Publisher {
	return &Publisher{
		dialer:  dialer,
		policy:  policy,
		timeout: publishTimeout,
	}
}

// Publish delivers exactly one message for r. There is no retry after a
// session was established: a failed publish drops the reading and tears the
// session down so the next cycle reconnects from scratch.
func (p *Publisher) Publish(ctx context.Context, r weather.Reading) error {
	body, err := r.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode reading: %v", ErrPublishFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.ensureSession(ctx)
	if err != nil {
		return err
	}

	msg := Message{
		ID:          uuid.NewString(),
		Key:         r.Location,
		ContentType: "application/json",
		Timestamp:   r.CaptureTime,
		Body:        body,
	}

	pubCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := session.Publish(pubCtx, msg); err != nil {
		p.dropSession()
		return fmt.Errorf("%w: %s: %v", ErrPublishFailed, p.dialer.Target(), err)
	}

	return nil
}

// ensureSession returns the current session or dials a new one. Caller holds p.mu.
func (p *Publisher) ensureSession(ctx context.Context) (Session, error) {
	if p.session != nil && !p.session.IsClosed() {
		return p.session, nil
	}

	log := zerolog.Ctx(ctx)
	if p.session != nil {
		log.Warn().Str("target", p.dialer.Target()).Msg("broker session lost, reconnecting")
		p.dropSession()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublishConnectFailed, err)
	}

	var (
		session  Session
		attempts int
	)
	err := retry.Do(ctx, p.policy, func(attempt int) error {
		attempts = attempt
		s, err := p.dialer.Dial(ctx)
		if p.OnConnectAttempt != nil {
			p.OnConnectAttempt(err)
		}
		if err != nil {
			return err
		}
		session = s
		return nil
	}, func(attempt int, err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.policy.Attempts).
			Dur("retry_in", next).
			Str("target", p.dialer.Target()).
			Msg("broker connect failed")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrPublishConnectFailed, p.dialer.Target(), attempts, err)
	}

	log.Info().Str("target", p.dialer.Target()).Msg("connected to broker")
	p.session = session
	return session, nil
}

// dropSession closes and forgets the current session. Caller holds p.mu.
func (p *Publisher) dropSession() {
	if p.session == nil {
		return
	}
	_ = p.session.Close()
	p.session = nil
}

// Close releases the broker session, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

// ErrorKind names the publish failure class of err, or "" if err is not a publish error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPublishConnectFailed):
		return "PublishConnectFailed"
	case errors.Is(err, ErrPublishFailed):
		return "PublishFailed"
	default:
		return ""
	}
}

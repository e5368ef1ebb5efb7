package providers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-sampler/internal/common"
	"github.com/i474232898/weather-sampler/internal/weather"
)

const (
	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 1 << 20
	// maxDiagnosticBody bounds the rejected body kept for logs.
	maxDiagnosticBody = 512
)

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// BreakerConfig controls when the upstream circuit opens. Only transport
// failures count toward tripping; an HTTP reply, even an error status, means
// the upstream is reachable.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
}

// DefaultBreaker tolerates a handful of bad cycles before shedding requests.
var DefaultBreaker = BreakerConfig{
	ConsecutiveFailures: 5,
	OpenTimeout:         2 * time.Minute,
}

// BreakerForPeriod sizes the open state to half the sample period, so the
// next scheduled fetch always finds the breaker half-open and reaches the
// upstream.
func BreakerForPeriod(period time.Duration) BreakerConfig {
	cfg := DefaultBreaker
	if half := period / 2; half > 0 && half < cfg.OpenTimeout {
		cfg.OpenTimeout = half
	}
	return cfg
}

func newCircuitBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultBreaker.ConsecutiveFailures
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultBreaker.OpenTimeout
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var rejected *weather.RejectedError
			return err == nil || errors.As(err, &rejected)
		},
	})
}

// doRequest executes exactly one attempt of req behind the circuit breaker and
// returns the response body of a 2xx reply. There are no retries: a failed
// cycle is absorbed by the next scheduled tick.
func doRequest(client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request, secrets ...string) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrFetchFailed, errNoHTTPClient)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			// url.Error embeds the full request URL, including the API key.
			return nil, fmt.Errorf("%w: %s", weather.ErrFetchFailed, common.Redact(err.Error(), secrets...))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %s", weather.ErrFetchFailed, common.Redact(err.Error(), secrets...))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &weather.RejectedError{
				StatusCode: resp.StatusCode,
				Body:       common.Truncate(common.Redact(string(body), secrets...), maxDiagnosticBody),
			}
		}

		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v: %v", weather.ErrFetchFailed, errCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", weather.ErrFetchFailed)
	}
	return body, nil
}

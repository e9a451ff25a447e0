// Package lastfm is a rate limited, retrying Last.fm client with a circuit
// breaker in front of the API.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ademuri/last-fm-dashboard/internal/logging"
	"github.com/ademuri/last-fm-dashboard/internal/metrics"
)

const breakerName = "lastfm-api"

type Config struct {
	APIKey     string
	Secret     string
	SessionKey string

	// RequestInterval is the minimum time between two API calls.
	// Defaults to one second.
	RequestInterval time.Duration
	// Attempts is the number of tries for a transient failure. Defaults to 3.
	Attempts uint
	// RetryDelay is the initial backoff between tries. Defaults to one second.
	RetryDelay time.Duration
}

type Client struct {
	backend    backend
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[any]
	attempts   uint
	retryDelay time.Duration
}

func New(cfg Config) *Client {
	return newClient(newAPIBackend(cfg.APIKey, cfg.Secret, cfg.SessionKey), cfg)
}

func newClient(b backend, cfg Config) *Client {
	if cfg.RequestInterval == 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	limit := rate.Every(cfg.RequestInterval)
	if cfg.RequestInterval < 0 {
		limit = rate.Inf
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		backend:    b,
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    cb,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// call runs fn once the limiter allows it, retrying transient failures. The
// breaker sees the result of the whole retry sequence.
func (c *Client) call(ctx context.Context, method string, fn func() (any, error)) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: waiting for rate limiter: %w", method, err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		var result any
		err := retry.Do(
			func() error {
				var err error
				result, err = fn()
				return err
			},
			retry.Attempts(c.attempts),
			retry.Delay(c.retryDelay),
			retry.RetryIf(transient),
			retry.OnRetry(func(n uint, err error) {
				logging.Warn().Err(err).Str("method", method).Uint("attempt", n+1).Msg("last.fm errored, retrying")
			}),
		)
		return result, err
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.RecordLastfmRequest(method, outcome)
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	metrics.RecordLastfmRequest(method, "success")
	return result, nil
}

// RecentTracks fetches one page (1-based) of the user's listening history.
func (c *Client) RecentTracks(ctx context.Context, user string, page int) (Page, error) {
	result, err := c.call(ctx, "user.getRecentTracks", func() (any, error) {
		return c.backend.recentTracks(user, page)
	})
	if err != nil {
		return Page{}, err
	}
	return result.(Page), nil
}

// TrackDuration returns the track length in milliseconds, or 0 when Last.fm
// has no duration for it.
func (c *Client) TrackDuration(ctx context.Context, track, artist string) (int64, error) {
	result, err := c.call(ctx, "track.getInfo", func() (any, error) {
		return c.backend.trackDuration(track, artist)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// AuthURL starts desktop authentication. The user approves access at the
// returned URL, then the token is exchanged with Login.
func (c *Client) AuthURL(ctx context.Context) (token, url string, err error) {
	type auth struct{ token, url string }
	result, err := c.call(ctx, "auth.getToken", func() (any, error) {
		token, url, err := c.backend.authToken()
		return auth{token, url}, err
	})
	if err != nil {
		return "", "", err
	}
	a := result.(auth)
	return a.token, a.url, nil
}

// Login exchanges an approved token for a session key.
func (c *Client) Login(ctx context.Context, token string) (string, error) {
	result, err := c.call(ctx, "auth.getSession", func() (any, error) {
		return c.backend.login(token)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

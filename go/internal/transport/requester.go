package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how Requester retries a request.
type RetryPolicy struct {
	// MaxAttempts counts the first try.
	MaxAttempts    int
	AttemptTimeout time.Duration
	// BaseDelay doubles after every retry.
	BaseDelay     time.Duration
	RetryStatuses []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		AttemptTimeout: 10 * time.Second,
		BaseDelay:      250 * time.Millisecond,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Requester issues HTTP requests with a per-attempt timeout and bounded retry.
type Requester struct {
	client *http.Client
	policy RetryPolicy
	clock  clockwork.Clock
	// OnRetry is called before each backoff wait with the attempt that failed.
	OnRetry func(attempt int, delay time.Duration, reason error)
}

func NewRequester(client *http.Client, policy RetryPolicy, clock clockwork.Clock) *Requester {
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Requester{client: client, policy: policy, clock: clock}
}

// Do sends the request, retrying network failures and retryable statuses when retry is
// set. Any other response is returned as is, whatever its status. Cancelling ctx stops
// immediately and is never retried.
func (r *Requester) Do(ctx context.Context, method, url string, header http.Header, body []byte, retry bool) (*Response, error) {
	attempts := r.policy.MaxAttempts
	if !retry {
		attempts = 1
	}

	var (
		resp *Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = r.attempt(ctx, method, url, header, body)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := r.retryReason(resp, err)
		if reason == nil || attempt >= attempts {
			return resp, err
		}

		delay := r.policy.BaseDelay << (attempt - 1)
		log.Debug().
			Err(reason).
			Str("method", method).
			Str("url", url).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying request")
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, reason)
		}

		select {
		case <-r.clock.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Requester) attempt(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// retryReason is nil when the outcome should be returned to the caller.
func (r *Requester) retryReason(resp *Response, err error) error {
	if err != nil {
		if errors.Is(err, ErrNetwork) {
			return err
		}
		return nil
	}
	for _, s := range r.policy.RetryStatuses {
		if resp.Status == s {
			return fmt.Errorf("status %d", resp.Status)
		}
	}
	return nil
}

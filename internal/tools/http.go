package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	maxResponseBytes = 4 << 20
	maxTries         = 3
)

// StatusError is returned when an upstream API answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
}

// fetcher performs JSON requests against plugin APIs with retry.
type fetcher struct {
	client  *http.Client
	backoff func() backoff.BackOff
}

func newFetcher(client *http.Client) *fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &fetcher{
		client: client,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// doJSON sends the request built by newReq and decodes a JSON response into
// out. Network errors, 429 and 5xx are retried; other failures are final.
// Returned errors never carry the request URL, which may hold credentials.
func (f *fetcher) doJSON(ctx context.Context, service string, newReq func(context.Context) (*http.Request, error), out any) error {
	operation := func() (struct{}, error) {
		req, err := newReq(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%s: building request: %w", service, err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, fmt.Errorf("%s: %w", service, stripURL(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
			return struct{}{}, &StatusError{Service: service, StatusCode: resp.StatusCode}
		}
		if resp.StatusCode >= 300 {
			return struct{}{}, backoff.Permanent(&StatusError{Service: service, StatusCode: resp.StatusCode})
		}

		if out != nil {
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%s: decoding response: %w", service, err))
			}
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.backoff()),
		backoff.WithMaxTries(maxTries),
	)
	return err
}

// stripURL drops the URL from *url.Error so query-string keys never reach logs.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s request failed: %w", uerr.Op, uerr.Err)
	}
	return err
}

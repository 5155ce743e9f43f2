package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// New builds an HTTP client tuned for outbound API calls. Connection reuse
// matters here: the WHO API sits behind TLS and token auth, so cold dials
// are expensive.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Retry runs fn up to attempts times with a linear backoff, stopping early
// when the error is nil, non-retriable, or the context is done.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetriable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return err
}

// Retriable marks errors that are worth another attempt. Errors that do not
// implement it are retried by default.
type Retriable interface {
	Retriable() bool
}

func IsRetriable(err error) bool {
	if r, ok := err.(Retriable); ok {
		return r.Retriable()
	}
	return true
}

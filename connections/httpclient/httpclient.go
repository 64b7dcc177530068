package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"matchable.io/sdk/v1/logger"
)

const (
	HTTPTimeout = time.Second * 30
)

type RequestMethod string

const (
	Get  RequestMethod = "GET"
	Post RequestMethod = "POST"
)

type HTTPOptions struct {
	Body    []byte
	Headers map[string][]string

	// Client overrides the default client built with Timeout
	Client  *http.Client
	Timeout time.Duration
}

// StatusError is returned alongside the response when the server answered outside of 2xx
type StatusError struct {
	Method     RequestMethod
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status code: %d", string(e.Method), e.StatusCode)
}

// permanent reports whether retrying can't change the outcome
func (e *StatusError) permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode < 500
}

type HttpClient struct {
	logger *logger.Logger
	client *http.Client

	backoffParams *backoff.ExponentialBackOff

	targetUrl string
	body      []byte
	headers   map[string][]string
}

func New(
	logger *logger.Logger,
	serviceUrl string,
	options HTTPOptions,
) (*HttpClient, error) {

	if serviceUrl == "" {
		return nil, fmt.Errorf("no url to send the request to")
	}

	if _, err := url.ParseRequestURI(serviceUrl); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", serviceUrl, err)
	}

	if options.Headers == nil {
		options.Headers = make(map[string][]string)
	}

	client := options.Client
	if client == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = HTTPTimeout
		}
		client = &http.Client{
			Timeout: timeout,
		}
	}

	return &HttpClient{
		logger:    logger,
		client:    client,
		targetUrl: serviceUrl,
		body:      options.Body,
		headers:   options.Headers,
	}, nil
}

// NewWithBackoff retries failed requests with exponential backoff until maxElapsed has passed.
// A non-positive maxElapsed sends every request once.
func NewWithBackoff(
	logger *logger.Logger,
	serviceUrl string,
	options HTTPOptions,
	maxElapsed time.Duration,
) (*HttpClient, error) {
	client, err := New(logger, serviceUrl, options)
	if err != nil || maxElapsed <= 0 {
		return client, err
	}

	backoffParams := backoff.NewExponentialBackOff()

	// Ref: https://github.com/cenkalti/backoff/blob/a78d3804c2c84f0a3178648138442c9b07665bda/exponential.go#L76
	// DefaultInitialInterval     = 500 * time.Millisecond
	// DefaultRandomizationFactor = 0.5
	// DefaultMultiplier          = 1.5
	// DefaultMaxInterval         = 60 * time.Second
	// DefaultMaxElapsedTime      = 15 * time.Minute

	backoffParams.MaxElapsedTime = maxElapsed
	if backoffParams.MaxInterval > maxElapsed {
		backoffParams.MaxInterval = maxElapsed
	}

	client.backoffParams = backoffParams
	return client, nil
}

func (h *HttpClient) Post(ctx context.Context) (*http.Response, error) {
	return h.request(Post, ctx)
}

func (h *HttpClient) Get(ctx context.Context) (*http.Response, error) {
	return h.request(Get, ctx)
}

func (h *HttpClient) request(method RequestMethod, ctx context.Context) (*http.Response, error) {
	// If there is no backoff, then only execute request once
	if h.backoffParams == nil {
		return h.makeRequestOnce(method, ctx)
	}

	var lastResponse *http.Response
	var lastErr error

	// Keep looping through our ticker, waiting for it to tell us when to retry
	ticker := backoff.NewTicker(backoff.WithContext(h.backoffParams, ctx))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if lastResponse != nil {
				lastResponse.Body.Close()
			}
			return nil, errors.Wrap(ctx.Err(), "context cancelled before successful http response")
		case _, ok := <-ticker.C:
			if !ok {
				if ctx.Err() != nil {
					if lastResponse != nil {
						lastResponse.Body.Close()
					}
					return nil, errors.Wrap(ctx.Err(), "context cancelled before successful http response")
				}
				if lastErr == nil {
					lastErr = fmt.Errorf("failed to get successful http response after %s", h.backoffParams.MaxElapsedTime)
				}
				return lastResponse, lastErr
			}

			if lastResponse != nil {
				lastResponse.Body.Close()
			}

			response, err := h.makeRequestOnce(method, ctx)
			if err == nil {
				return response, nil
			}

			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.permanent() {
				return response, err
			}

			lastResponse, lastErr = response, err
			h.logger.Warnf("%s, will retry", err)
		}
	}
}

func (h *HttpClient) makeRequestOnce(method RequestMethod, ctx context.Context) (*http.Response, error) {
	// Build our Request, the body is rebuilt every time so retries resend it in full
	request, err := http.NewRequestWithContext(ctx, string(method), h.targetUrl, bytes.NewReader(h.body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s request", string(method))
	}

	if len(h.body) == 0 {
		request.Body = http.NoBody
		request.ContentLength = 0
	}

	for name, values := range h.headers {
		for _, value := range values {
			request.Header.Add(name, value)
		}
	}

	h.logger.Tracef("%s %s", string(method), h.targetUrl)

	// Make our Request
	response, err := h.client.Do(request)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", string(method))
	}

	// Check if request was successful
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response, errors.WithStack(&StatusError{Method: method, StatusCode: response.StatusCode})
	}

	return response, nil
}

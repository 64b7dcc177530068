package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/connections/httpclient"
	"matchable.io/sdk/v1/logger"
	"matchable.io/sdk/v1/response"
	"matchable.io/sdk/v1/services/sysinfoservice"
	"matchable.io/sdk/v1/settings"
)

const (
	contentTypeHeader   = "Content-Type"
	authorizationHeader = "Authorization"
	jsonContentType     = "application/json"
)

// Result is the outcome of an asynchronous call: a Response, an error, or both for
// status and parse errors
type Result struct {
	Response *response.Response
	Err      error
}

// Call is any of the client's operations, bound to its arguments
type Call func(ctx context.Context) (*response.Response, error)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithSystemInfo(sysinfo sysinfoservice.SystemInfoService) Option {
	return func(c *Client) {
		c.sysinfo = sysinfo
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

type Client struct {
	logger   *logger.Logger
	settings settings.Provider

	httpClient *http.Client
	sysinfo    sysinfoservice.SystemInfoService
	now        func() time.Time

	// the plugin enablement flag, read before every call
	enabled atomic.Bool

	// tracks in-flight async calls, mu keeps Async from racing Close
	mu  sync.Mutex
	tmb tomb.Tomb
}

func New(logger *logger.Logger, provider settings.Provider, opts ...Option) (*Client, error) {
	current := provider.Current()
	if err := current.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matchable settings: %w", err)
	}

	c := &Client{
		logger:   logger,
		settings: provider,
		sysinfo:  sysinfoservice.OsSystemInfoService{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.enabled.Store(current.Enabled)

	// keeps the tomb alive until Close, so calls can be tracked at any time before that
	c.tmb.Go(func() error {
		<-c.tmb.Dying()
		return nil
	})

	return c, nil
}

// Enable turns network calls on, this is the default
func (c *Client) Enable() {
	c.enabled.Store(true)
}

// Disable turns every operation into a no-op. Useful when debugging other plugins.
func (c *Client) Disable() {
	c.enabled.Store(false)
}

func (c *Client) Enabled() bool {
	return c.enabled.Load()
}

// Close cancels in-flight async calls and waits for them to return
func (c *Client) Close() error {
	c.mu.Lock()
	c.tmb.Kill(nil)
	c.mu.Unlock()

	return c.tmb.Wait()
}

// SendAction posts a single player action of the given type
func (c *Client) SendAction(ctx context.Context, actionType string, parameters interface{}) (*response.Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	s := c.settings.Current()
	actionLogger := c.logger.GetActionLogger(actionType).GetRequestLogger(uuid.New().String())

	a, err := action.New(actionType, parameters, s.ActionIdentity(), c.now())
	if err != nil {
		actionLogger.Errorf("SendAction(): %s", err)
		return nil, err
	}

	body, err := a.Body()
	if err != nil {
		actionLogger.Error(err)
		return nil, err
	}

	if s.LoggingEnabled {
		actionLogger.Infof("Sent action: %s", body)
	}

	headers := map[string][]string{
		contentTypeHeader:   {jsonContentType},
		authorizationHeader: {authorization(s.AppKey)},
	}
	return c.exchange(ctx, actionLogger, s, httpclient.Post, "actions", s.ActionsEndpoint, body, headers)
}

// GetRecommendations fetches the recommendations Matchable computed for the player
func (c *Client) GetRecommendations(ctx context.Context) (*response.Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	s := c.settings.Current()
	headers := map[string][]string{
		authorizationHeader: {authorization(s.AppKey)},
	}
	return c.exchange(ctx, c.requestLogger(), s, httpclient.Get, "recommendations", s.RecommendationsEndpoint, nil, headers)
}

func (c *Client) GetStats(ctx context.Context) (*response.Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	s := c.settings.Current()
	return c.exchange(ctx, c.requestLogger(), s, httpclient.Get, "stats", s.StatsEndpoint, nil, nil)
}

func (c *Client) GetAdvisor(ctx context.Context) (*response.Response, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	s := c.settings.Current()
	return c.exchange(ctx, c.requestLogger(), s, httpclient.Get, "advisor", s.AdvisorEndpoint, nil, nil)
}

// Async runs call in the background. The channel gets exactly one Result, unless the call
// was gated (sdk disabled or no action type) in which case it's closed empty.
func (c *Client) Async(ctx context.Context, call Call) <-chan Result {
	results := make(chan Result, 1)
	c.spawn(ctx, call, func(result Result) {
		results <- result
	}, func() {
		close(results)
	})
	return results
}

// Callback runs call in the background and hands the Result to cb, cb is never invoked for
// gated calls
func (c *Client) Callback(ctx context.Context, call Call, cb func(Result)) {
	c.spawn(ctx, call, cb, func() {})
}

func (c *Client) SendActionAsync(ctx context.Context, actionType string, parameters interface{}) <-chan Result {
	return c.Async(ctx, func(ctx context.Context) (*response.Response, error) {
		return c.SendAction(ctx, actionType, parameters)
	})
}

func (c *Client) spawn(ctx context.Context, call Call, deliver func(Result), done func()) {
	c.mu.Lock()
	if !c.tmb.Alive() {
		c.mu.Unlock()
		defer done()

		if !c.Enabled() {
			return
		}

		// a cancelled call still reports a missing type without touching the network
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := call(cancelled); gated(err) {
			return
		}

		deliver(Result{Err: ErrClosed})
		return
	}
	defer c.mu.Unlock()

	c.tmb.Go(func() error {
		defer done()

		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-c.tmb.Dying():
				cancel()
			case <-callCtx.Done():
			}
		}()

		resp, err := call(callCtx)
		if gated(err) {
			return nil
		}

		deliver(Result{Response: resp, Err: err})
		return nil
	})
}

func (c *Client) requestLogger() *logger.Logger {
	return c.logger.GetRequestLogger(uuid.New().String())
}

// exchange performs one request and wraps whatever came back
func (c *Client) exchange(
	ctx context.Context,
	logger *logger.Logger,
	s settings.Settings,
	method httpclient.RequestMethod,
	name string,
	endpoint string,
	body []byte,
	headers map[string][]string,
) (*response.Response, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotConfigured, name)
	}

	options := httpclient.HTTPOptions{
		Body:    body,
		Headers: headers,
		Client:  c.httpClient,
		Timeout: s.HTTPTimeout.Std(),
	}

	client, err := httpclient.NewWithBackoff(logger, endpoint, options, s.RetryMaxElapsed.Std())
	if err != nil {
		return nil, &TransportError{Method: string(method), Endpoint: endpoint, Err: err}
	}

	var httpResponse *http.Response
	switch method {
	case httpclient.Post:
		httpResponse, err = client.Post(ctx)
	default:
		httpResponse, err = client.Get(ctx)
	}

	var statusErr *httpclient.StatusError
	if err != nil && !errors.As(err, &statusErr) {
		logger.Error(err)
		return nil, &TransportError{Method: string(method), Endpoint: endpoint, Err: err}
	}
	defer httpResponse.Body.Close()

	raw, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, &TransportError{Method: string(method), Endpoint: endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	resp := response.New(httpResponse.StatusCode, raw)
	logger.Debugf("%s %s replied %d", string(method), name, httpResponse.StatusCode)

	if statusErr != nil {
		return resp, &StatusError{StatusCode: httpResponse.StatusCode, Response: resp}
	}

	if resp.Err() != nil {
		return resp, &ParseError{Err: resp.Err(), Response: resp}
	}

	return resp, nil
}

func authorization(appKey string) string {
	return "api_key " + appKey
}

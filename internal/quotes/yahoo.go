package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ivsurface/internal/errors"
	"ivsurface/internal/logging"
	"ivsurface/internal/models"
	"ivsurface/internal/resilience"
	"ivsurface/pkg/utils"
)

const (
	// DefaultBaseURL is the Yahoo Finance query host.
	DefaultBaseURL = "https://query2.finance.yahoo.com"
	// DefaultUserAgent is sent with every request; the endpoint rejects empty agents.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) ivsurface/1.0"
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 15 * time.Second
	// DefaultCookieURL hands out the session cookie the crumb is bound to.
	DefaultCookieURL = "https://fc.yahoo.com"

	crumbPath = "/v1/test/getcrumb"
)

//go:generate mockgen -package=quotes -destination=mock_http_client_test.go -source=yahoo.go HTTPClient

// HTTPClient is the subset of *http.Client the Yahoo client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// YahooClient reads option chains from the Yahoo Finance v7 options endpoint.
type YahooClient struct {
	baseURL   string
	userAgent string
	http      HTTPClient
	retry     utils.RetryConfig
	breaker   *resilience.CircuitBreaker
	limiter   *rate.Limiter
	workers   int
	logger    zerolog.Logger
	now       func() time.Time

	cookieURL     string
	session       session
	sessionFlight singleflight.Group
}

// session is the cookie and crumb pair Yahoo asks for on the options endpoint.
type session struct {
	mu     sync.RWMutex
	cookie string
	crumb  string
}

func (s *session) get() (cookie, crumb string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookie, s.crumb
}

func (s *session) set(cookie, crumb string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie, s.crumb = cookie, crumb
}

// YahooOption configures a YahooClient.
type YahooOption func(*YahooClient)

// WithBaseURL points the client at a different host, e.g. a test server.
func WithBaseURL(baseURL string) YahooOption {
	return func(c *YahooClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCookieURL sets the page requested for a session cookie.
func WithCookieURL(u string) YahooOption {
	return func(c *YahooClient) {
		if u != "" {
			c.cookieURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h HTTPClient) YahooOption {
	return func(c *YahooClient) {
		c.http = h
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) YahooOption {
	return func(c *YahooClient) {
		c.http = newHTTPClient(d)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) YahooOption {
	return func(c *YahooClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxRetries sets how many attempts a request gets before giving up.
func WithMaxRetries(n int) YahooOption {
	return func(c *YahooClient) {
		c.retry.MaxAttempts = n
	}
}

// WithBackoff sets the retry delays.
func WithBackoff(initial, max time.Duration) YahooOption {
	return func(c *YahooClient) {
		c.retry.InitialDelay = initial
		c.retry.MaxDelay = max
	}
}

// WithRateLimit caps the request rate across all expirations.
func WithRateLimit(perSecond float64, burst int) YahooOption {
	return func(c *YahooClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithConcurrency sets how many expirations are fetched in parallel.
func WithConcurrency(n int) YahooOption {
	return func(c *YahooClient) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) YahooOption {
	return func(c *YahooClient) {
		c.breaker = cb
	}
}

// WithLogger sets the logger used for request timings and skipped expirations.
func WithLogger(logger zerolog.Logger) YahooOption {
	return func(c *YahooClient) {
		c.logger = logger
	}
}

// WithClock sets the clock used for time-to-expiration and FetchedAt.
func WithClock(now func() time.Time) YahooOption {
	return func(c *YahooClient) {
		c.now = now
	}
}

// NewYahooClient creates a client with production defaults.
func NewYahooClient(opts ...YahooOption) *YahooClient {
	cbConfig := resilience.DefaultCircuitBreakerConfig()
	cbConfig.IsFailure = countsAgainstProvider

	c := &YahooClient{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http:      newHTTPClient(DefaultTimeout),
		retry:     utils.DefaultRetryConfig(),
		breaker:   resilience.NewCircuitBreaker("yahoo", cbConfig),
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		workers:   4,
		logger:    zerolog.Nop(),
		now:       time.Now,
		cookieURL: DefaultCookieURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = isTransient
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Name implements Provider.
func (c *YahooClient) Name() string { return "yahoo" }

// Breaker exposes the client's circuit breaker for status reporting.
func (c *YahooClient) Breaker() *resilience.CircuitBreaker { return c.breaker }

// FetchChain lists the ticker's expirations and collects the calls of each one.
// An expiration whose request fails is logged and skipped.
func (c *YahooClient) FetchChain(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	log := logging.WithTicker(c.logger, ticker)

	first, err := c.getChain(ctx, ticker, 0)
	if err != nil {
		return nil, err
	}
	spot := first.Quote.RegularMarketPrice
	if !(spot > 0) || math.IsInf(spot, 0) {
		return nil, errors.NewDataError("options", ticker, "no spot price", errors.ErrNoOptionData)
	}
	dates := first.ExpirationDates
	if len(dates) == 0 {
		return nil, errors.NewDataError("options", ticker, "no listed expirations", errors.ErrNoOptionData)
	}

	fetchedAt := c.now()
	calls := make([][]contract, len(dates))
	var skipped atomic.Int32

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, date := range dates {
		// The listing response already carries the nearest expiration.
		if len(first.Options) > 0 && first.Options[0].ExpirationDate == date {
			calls[i] = first.Options[0].Calls
			continue
		}
		i, date := i, date
		g.Go(func() error {
			res, err := c.getChain(ctx, ticker, date)
			if err == nil && len(res.Options) == 0 {
				err = errors.ErrNoOptionData
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				skipped.Add(1)
				log.Warn().Err(err).
					Str("expiration", expiryDate(date).Format("2006-01-02")).
					Msg("Could not retrieve expiration, skipping")
				return nil
			}
			calls[i] = res.Options[0].Calls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &models.OptionChainSnapshot{
		Ticker:    ticker,
		SpotPrice: spot,
		FetchedAt: fetchedAt,
	}
	for i, date := range dates {
		expiry := expiryDate(date)
		for _, k := range calls[i] {
			if k.ImpliedVolatility == nil {
				continue
			}
			p, ok := models.NewContractPoint(expiry, fetchedAt, k.Strike, spot, k.Bid, k.Ask, *k.ImpliedVolatility)
			if !ok || p.TimeToExpiration < 0 {
				continue
			}
			snap.Points = append(snap.Points, p)
		}
	}

	log.Info().
		Int("expirations", len(dates)).
		Int32("skipped", skipped.Load()).
		Int("contracts", len(snap.Points)).
		Float64("spot", spot).
		Msg("Fetched option chain")

	if len(snap.Points) == 0 {
		return nil, errors.NewDataError("options", ticker, "no contract with a defined implied volatility", errors.ErrNoOptionData)
	}
	return snap, nil
}

// getChain fetches one page of the options endpoint. date 0 asks for the
// expiration listing plus the nearest expiration.
func (c *YahooClient) getChain(ctx context.Context, ticker string, date int64) (*chainResult, error) {
	endpoint := fmt.Sprintf("%s/v7/finance/options/%s", c.baseURL, url.PathEscape(ticker))
	if date > 0 {
		endpoint += "?date=" + strconv.FormatInt(date, 10)
	}

	return utils.RetryWithResult(ctx, c.retry, func() (*chainResult, error) {
		return resilience.Execute(c.breaker, ctx, func(ctx context.Context) (*chainResult, error) {
			res, err := c.do(ctx, ticker, endpoint)
			if !errors.Is(err, errors.ErrUnauthorized) {
				return res, err
			}
			// One new session per refused request, then give up.
			if serr := c.renewSession(ctx); serr != nil {
				c.logger.Warn().Err(serr).Msg("Could not obtain a Yahoo session")
				return nil, err
			}
			return c.do(ctx, ticker, endpoint)
		})
	})
}

func (c *YahooClient) do(ctx context.Context, ticker, endpoint string) (*chainResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	cookie, crumb := c.session.get()
	if crumb != "" {
		endpoint = withQuery(endpoint, "crumb", crumb)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &permanentError{errors.NewDataError("options", ticker, "bad request", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.LogAPICall(c.logger, http.MethodGet, endpoint, 0, time.Since(start), err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewDataError("options", ticker, "request failed",
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	err = statusError(ticker, resp.StatusCode)
	logging.LogAPICall(c.logger, http.MethodGet, endpoint, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var body optionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &permanentError{errors.NewDataError("options", ticker, "malformed response",
			fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))}
	}
	if len(body.OptionChain.Result) == 0 {
		msg := "empty option chain"
		if e := body.OptionChain.Error; e != nil {
			msg = e.Description
		}
		return nil, errors.NewDataError("options", ticker, msg, errors.ErrNoOptionData)
	}
	return &body.OptionChain.Result[0], nil
}

func statusError(ticker string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return errors.NewDataError("options", ticker, "unknown ticker", errors.ErrNoOptionData)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &permanentError{errors.NewDataError("options", ticker,
			fmt.Sprintf("HTTP %d, session cookie or crumb refused", status), errors.ErrUnauthorized)}
	case status == http.StatusTooManyRequests:
		return errors.NewDataError("options", ticker, "HTTP 429", errors.ErrRateLimited)
	case status >= 500:
		return errors.NewDataError("options", ticker, fmt.Sprintf("HTTP %d", status), errors.ErrConnectionFailed)
	default:
		return &permanentError{errors.NewDataError("options", ticker, fmt.Sprintf("HTTP %d", status), errors.ErrConnectionFailed)}
	}
}

// renewSession fetches a cookie and the crumb bound to it. Concurrent callers
// share one renewal.
func (c *YahooClient) renewSession(ctx context.Context) error {
	_, err, _ := c.sessionFlight.Do("session", func() (interface{}, error) {
		cookie, err := c.fetchCookie(ctx)
		if err != nil {
			return nil, err
		}
		crumb, err := c.fetchCrumb(ctx, cookie)
		if err != nil {
			return nil, err
		}
		c.session.set(cookie, crumb)
		c.logger.Debug().Msg("Obtained Yahoo session")
		return nil, nil
	})
	return err
}

func (c *YahooClient) fetchCookie(ctx context.Context) (string, error) {
	resp, err := c.sessionGet(ctx, c.cookieURL, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// The cookie page answers 404 but still sets the cookie.
	var pairs []string
	for _, ck := range resp.Cookies() {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	if len(pairs) == 0 {
		return "", fmt.Errorf("%s set no cookie (HTTP %d)", c.cookieURL, resp.StatusCode)
	}
	return strings.Join(pairs, "; "), nil
}

func (c *YahooClient) fetchCrumb(ctx context.Context, cookie string) (string, error) {
	resp, err := c.sessionGet(ctx, c.baseURL+crumbPath, cookie)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	crumb := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK || crumb == "" || strings.ContainsAny(crumb, "<{ ") {
		return "", fmt.Errorf("crumb request returned HTTP %d", resp.StatusCode)
	}
	return crumb, nil
}

func (c *YahooClient) sessionGet(ctx context.Context, endpoint, cookie string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	logging.LogAPICall(c.logger, http.MethodGet, endpoint, status, time.Since(start), err)
	return resp, err
}

func withQuery(endpoint, key, value string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// permanentError marks a failure that another attempt would not fix.
type permanentError struct{ error }

func (e *permanentError) Unwrap() error { return e.error }

func isTransient(err error) bool {
	var p *permanentError
	switch {
	case errors.As(err, &p),
		errors.IsNoData(err),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// countsAgainstProvider keeps "no data" answers and caller cancellations
// from tripping the breaker.
func countsAgainstProvider(err error) bool {
	return !errors.IsNoData(err) && !errors.Is(err, context.Canceled)
}

// Yahoo stamps expirations at 00:00 UTC of the expiry day.
func expiryDate(epoch int64) time.Time {
	return time.Unix(epoch, 0).UTC()
}

type optionsResponse struct {
	OptionChain struct {
		Result []chainResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"optionChain"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chainResult struct {
	UnderlyingSymbol string  `json:"underlyingSymbol"`
	ExpirationDates  []int64 `json:"expirationDates"`
	Quote            struct {
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"quote"`
	Options []struct {
		ExpirationDate int64      `json:"expirationDate"`
		Calls          []contract `json:"calls"`
	} `json:"options"`
}

type contract struct {
	ContractSymbol    string   `json:"contractSymbol"`
	Strike            float64  `json:"strike"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
}

package binance

// client.go — HTTP client de Binance spot con rate limiting, retries con
// backoff exponencial y circuit breaker.
//
// Endpoints públicos (klines, ticker) van sin firma; los de trading llevan
// X-MBX-APIKEY y firma HMAC-SHA256 sobre la query.

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.binance.com"

	// Binance permite 6000 de peso por minuto; nos quedamos en ~60%.
	// La mayoría de llamadas pesan 2 (klines, ticker de un símbolo).
	requestsPerSec = 30
	requestBurst   = 10

	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	baseRetryWait     = 500 * time.Millisecond
	recvWindowMillis  = 5000
)

var (
	ErrOrderRejected = errors.New("order rejected by exchange")
	ErrMissingAPIKey = errors.New("api key and secret required for signed endpoints")
)

// APIError is a 4xx answer from Binance. Code is Binance's own error code.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance error %d (code %d): %s", e.Status, e.Code, e.Msg)
}

// Config del cliente. Los campos vacíos usan los valores por defecto.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration // base del backoff exponencial
}

// Client implements ports.MarketDataSource, ports.UniverseProvider,
// ports.CandleHistory and ports.OrderExecutor over the spot REST API.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	maxRetries int
	retryWait  time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time

	filters *filterCache
}

// NewClient crea un Client. Sin API key solo sirven los endpoints públicos.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		limiter:    rate.NewLimiter(requestsPerSec, requestBurst),
		breaker:    newBreaker("binance"),
		now:        time.Now,
		filters:    newFilterCache(),
	}
}

// newBreaker abre el circuito tras 5 fallos consecutivos (5xx, red, retries
// agotados). Los 4xx son errores del caller y no cuentan.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// get hace un GET público con rate limiting y retries.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, func() (*http.Request, error) {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, out)
}

// signed hace una llamada firmada. timestamp y firma se regeneran en cada
// intento; el resto de params (incluido newClientOrderId) no cambia.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.apiKey == "" || c.apiSecret == "" {
		return ErrMissingAPIKey
	}
	return c.do(ctx, func() (*http.Request, error) {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("recvWindow", strconv.Itoa(recvWindowMillis))
		q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		payload := q.Encode()
		u := c.baseURL + path + "?" + payload + "&signature=" + sign(c.apiSecret, payload)

		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
		return req, nil
	}, out)
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.doWithRetry(ctx, build, out)
	})
	return err
}

// doWithRetry ejecuta la request con backoff exponencial. Reintenta errores
// de red, 429/418 y 5xx; cualquier otro 4xx se devuelve como *APIError.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == c.maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", c.maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			resp.Body.Close()
			slog.Warn("rate limited by binance", "status", resp.StatusCode, "attempt", attempt+1)
			if attempt == c.maxRetries {
				return fmt.Errorf("rate limited after %d retries", c.maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == c.maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, c.maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode}
			if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
				apiErr.Msg = string(body)
			}
			return apiErr
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", c.maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

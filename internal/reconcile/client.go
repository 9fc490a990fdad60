package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

var (
	// ErrCityNotFound means the backend could not resolve the city name.
	ErrCityNotFound = errors.New("city not found")
	// ErrAlreadyTracked means the backend already holds the city (or favorite).
	ErrAlreadyTracked = errors.New("already tracked")
	// ErrNotTracked means the city (or favorite) is not held by the backend.
	ErrNotTracked = errors.New("not tracked")
	// ErrUnexpectedStatus is any other non-2xx answer.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Backend is the request/response side of the weather backend.
type Backend interface {
	ListCities(ctx context.Context) ([]string, error)
	ListFavorites(ctx context.Context) ([]string, error)
	AddCity(ctx context.Context, city string) error
	RemoveCity(ctx context.Context, city string) error
	AddFavorite(ctx context.Context, city string) error
	RemoveFavorite(ctx context.Context, city string) error
}

// statusError is a 5xx or 429; it counts against the breaker and is retried on reads.
type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("backend answered %d", e.code)
}

type response struct {
	status int
	body   []byte
}

// Client talks to the backend over HTTP. Reads are retried with exponential
// backoff; mutations are sent once.
type Client struct {
	baseURL string
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger

	readRetries int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewClient creates a client for baseURL (e.g. "http://localhost:8000").
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weather-backend",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
		}),
		logger:      logger,
		readRetries: 2,
		backoff:     250 * time.Millisecond,
		maxBackoff:  2 * time.Second,
	}
}

func (c *Client) ListCities(ctx context.Context) ([]string, error) {
	var out weather.CityList
	if err := c.read(ctx, "/cities", &out); err != nil {
		return nil, err
	}
	return nonNil(out.Cities), nil
}

func (c *Client) ListFavorites(ctx context.Context) ([]string, error) {
	var out weather.FavoriteList
	if err := c.read(ctx, "/favorites", &out); err != nil {
		return nil, err
	}
	return nonNil(out.Favorites), nil
}

func (c *Client) AddCity(ctx context.Context, city string) error {
	resp, err := c.do(ctx, http.MethodPost, "/cities", weather.CityRequest{City: city}, 0)
	if err != nil {
		return err
	}
	switch resp.status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("add %q: %w", city, ErrCityNotFound)
	case http.StatusConflict:
		return fmt.Errorf("add %q: %w", city, ErrAlreadyTracked)
	}
	return fmt.Errorf("add %q: %w: %d", city, ErrUnexpectedStatus, resp.status)
}

func (c *Client) RemoveCity(ctx context.Context, city string) error {
	return c.remove(ctx, "/cities/", city)
}

func (c *Client) AddFavorite(ctx context.Context, city string) error {
	resp, err := c.do(ctx, http.MethodPost, "/favorites", weather.CityRequest{City: city}, 0)
	if err != nil {
		return err
	}
	switch resp.status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("favorite %q: %w", city, ErrNotTracked)
	case http.StatusConflict:
		return fmt.Errorf("favorite %q: %w", city, ErrAlreadyTracked)
	}
	return fmt.Errorf("favorite %q: %w: %d", city, ErrUnexpectedStatus, resp.status)
}

func (c *Client) RemoveFavorite(ctx context.Context, city string) error {
	return c.remove(ctx, "/favorites/", city)
}

func (c *Client) remove(ctx context.Context, prefix, city string) error {
	resp, err := c.do(ctx, http.MethodDelete, prefix+url.PathEscape(city), nil, 0)
	if err != nil {
		return err
	}
	switch resp.status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("remove %q: %w", city, ErrNotTracked)
	}
	return fmt.Errorf("remove %q: %w: %d", city, ErrUnexpectedStatus, resp.status)
}

func (c *Client) read(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, c.readRetries)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("GET %s: %w: %d", path, ErrUnexpectedStatus, resp.status)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// do sends one request through the breaker, retrying transport errors and
// 5xx/429 answers up to retries times. Other answers are returned as is.
func (c *Client) do(ctx context.Context, method, path string, body any, retries int) (response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{}, err
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return response{}, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, statusError{code: resp.StatusCode}
			}
			return response{status: resp.StatusCode, body: b}, nil
		})

		if err == nil {
			return result.(response), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, fmt.Errorf("%s %s: backend unavailable: %w", method, path, err)
		}

		var se statusError
		if attempt >= retries || ctx.Err() != nil {
			if errors.As(err, &se) {
				return response{}, fmt.Errorf("%s %s: %w: %d", method, path, ErrUnexpectedStatus, se.code)
			}
			return response{}, fmt.Errorf("%s %s: %w", method, path, err)
		}

		delay := c.backoff * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.maxBackoff {
			delay = c.maxBackoff
		}
		c.logger.Debug("retrying backend read", "path", path, "attempt", attempt+1, "in", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return response{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/config"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	// ImageBaseURL prefixes poster and backdrop paths
	ImageBaseURL = "https://image.tmdb.org/t/p/original"
)

// ErrNotFound is returned when TMDB has no matching title
var ErrNotFound = errors.New("not found on TMDB")

// APIError is a non-2xx answer from TMDB
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB request failed with status %d: %s", e.StatusCode, e.Body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Client handles communication with the TMDB v3 API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a new TMDB API client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.TMDBBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     cfg.TMDBAPIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
		logger: logger,
	}
}

// Configured reports whether an API key is available
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// doRequest performs a GET against TMDB, retrying rate limits and server
// errors with exponential backoff
func (c *Client) doRequest(ctx context.Context, path string, query url.Values, result interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	fullURL := c.baseURL + path + "?" + query.Encode()

	c.logger.WithFields(logrus.Fields{
		"method": http.MethodGet,
		"path":   path,
	}).Debug("Making TMDB API request")

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
			if retryable(resp.StatusCode) {
				c.logger.WithField("status", resp.StatusCode).Debug("Retrying TMDB request")
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		body = data
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ImageURL turns a TMDB image path into a full URL; nil when absent
func ImageURL(path *string) *string {
	if path == nil || *path == "" {
		return nil
	}
	full := ImageBaseURL + *path
	return &full
}

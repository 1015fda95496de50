package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/config"
)

// PageSize is the number of items pushed per agentIngest request
const PageSize = 200

// ErrNoAPIKey is returned by push when the agent has not been claimed yet
var ErrNoAPIKey = errors.New("agent has no API key, run claim first")

// APIError is a non-2xx answer from the cloud functions
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// ClaimResult is the agentClaim answer
type ClaimResult struct {
	AgentAPIKey string `json:"agentApiKey"`
	ServerID    string `json:"serverId"`
}

// ItemResult is the per-item outcome reported by agentIngest
type ItemResult struct {
	MediaID string `json:"mediaId,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// PushSummary totals a push across all pages
type PushSummary struct {
	Pages    int
	Upserted int
	Failed   []ItemResult
}

// Client talks to the claim and ingest endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a new agent client
func NewClient(cfg *config.AgentConfig, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		logger: logger,
	}
}

// Claim redeems the claim credentials shown to the user and returns the
// agent API key
func (c *Client) Claim(ctx context.Context, publicID, secret, name, version string) (*ClaimResult, error) {
	body := map[string]string{
		"claimPublicId": publicID,
		"claimSecret":   secret,
	}
	if name != "" {
		body["agentName"] = name
	}
	if version != "" {
		body["agentVersion"] = version
	}

	status, data, err := c.post(ctx, "/agentClaim", "", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, data)
	}

	var result ClaimResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.AgentAPIKey == "" {
		return nil, errors.New("server returned no API key")
	}

	c.logger.WithField("server_id", result.ServerID).Info("Agent claimed")
	return &result, nil
}

// Push sends items to agentIngest in pages of PageSize. Per-item failures
// are collected in the summary; a request-level failure stops the push.
func (c *Client) Push(ctx context.Context, apiKey string, items []Item) (*PushSummary, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	summary := &PushSummary{}
	for start := 0; start < len(items); start += PageSize {
		end := start + PageSize
		if end > len(items) {
			end = len(items)
		}

		status, data, err := c.post(ctx, "/agentIngest", apiKey, map[string]interface{}{"items": items[start:end]})
		if err != nil {
			return summary, fmt.Errorf("failed to push items %d-%d: %w", start, end-1, err)
		}

		// 207 and the all-failed 400 still carry per-item results
		var response struct {
			Results []ItemResult `json:"results"`
		}
		if json.Unmarshal(data, &response) != nil || response.Results == nil {
			if status == http.StatusOK || status == http.StatusMultiStatus {
				return summary, fmt.Errorf("unexpected ingest response: %s", data)
			}
			return summary, decodeAPIError(status, data)
		}

		summary.Pages++
		for _, r := range response.Results {
			if r.Status == "upserted" {
				summary.Upserted++
				continue
			}
			summary.Failed = append(summary.Failed, r)
		}

		c.logger.WithFields(logrus.Fields{
			"page":   summary.Pages,
			"items":  end - start,
			"status": status,
		}).Info("Pushed page")
	}

	return summary, nil
}

// post sends a JSON body and returns the raw answer. 429 and 5xx answers
// are retried with backoff.
func (c *Client) post(ctx context.Context, path, bearer string, body interface{}) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var status int
	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		status = resp.StatusCode

		if status == http.StatusTooManyRequests || status >= 500 {
			c.logger.WithFields(logrus.Fields{"path": path, "status": status}).Warn("Retrying request")
			return decodeAPIError(status, data)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return status, nil, err
	}
	return status, data, nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var body struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(data))}
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		apiErr.Code = body.Error.Status
		apiErr.Message = body.Error.Message
	}
	return apiErr
}

// SaveKey stores the API key readable by the owner only
func SaveKey(path, key string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return os.Chmod(path, 0600)
}

// LoadKey reads the API key written by SaveKey. A missing file yields
// ErrNoAPIKey.
func LoadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

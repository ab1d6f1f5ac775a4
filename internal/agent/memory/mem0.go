package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aatumaykin/tradiecrm/internal/logger"
	"github.com/aatumaykin/tradiecrm/internal/retry"
)

const (
	// DefaultBaseURL is the hosted Mem0 API.
	DefaultBaseURL = "https://api.mem0.ai"
	// DefaultLimit is the number of memories requested per search.
	DefaultLimit = 5
	// DefaultTimeout bounds a single search request.
	DefaultTimeout = 5 * time.Second

	searchPath = "/v1/memories/search/"
)

// Mem0Config configures the Mem0 REST client.
type Mem0Config struct {
	APIKey     string
	BaseURL    string
	Limit      int
	Timeout    time.Duration
	MaxRetries int
}

// Mem0Client searches the Mem0 memory API.
type Mem0Client struct {
	client *http.Client
	config Mem0Config
	logger *logger.Logger
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

// NewMem0Client creates a Mem0 client.
func NewMem0Client(cfg Mem0Config, log *logger.Logger) *Mem0Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Mem0Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: log,
	}
}

// Search returns the memories most relevant to query for userID.
func (c *Mem0Client) Search(ctx context.Context, userID, query string) ([]Item, error) {
	body, err := json.Marshal(searchRequest{Query: query, UserID: userID, Limit: c.config.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	return retry.Do(ctx, retry.Config{
		MaxAttempts:    c.config.MaxRetries + 1,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     time.Second,
		Operation:      "mem0_search",
		Logger:         c.logger,
	}, func(ctx context.Context) ([]Item, error) {
		return c.doSearch(ctx, body)
	})
}

func (c *Mem0Client) doSearch(ctx context.Context, body []byte) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return decodeSearch(data)
}

// decodeSearch accepts both the bare array and the {"results": [...]} shapes.
func decodeSearch(data []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Results []Item `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return wrapped.Results, nil
}

package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPClient is the production implementation of Client.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTPClient creates a chat API client.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chat api base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ListWaitingEntities fetches the current queue snapshot.
func (c *HTTPClient) ListWaitingEntities(ctx context.Context) ([]WaitingEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/queue/waiting", nil)
	if err != nil {
		return nil, fmt.Errorf("create queue request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("queue request returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Entities []WaitingEntity `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode queue response: %w", err)
	}

	return payload.Entities, nil
}

// SendActionCard asks the chat API to deliver a templated action card to the
// entity's conversation. A 2xx with accepted=false is an application-level
// rejection, not a transport failure.
func (c *HTTPClient) SendActionCard(ctx context.Context, entityID, cardID string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"entity_id": entityID,
		"card_id":   cardID,
	})
	if err != nil {
		return false, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/cards/send", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create send request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("send returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("decode send response: %w", err)
	}

	if !result.Accepted {
		c.logger.Warn("action card rejected by chat api",
			zap.String("entity_id", entityID),
			zap.String("card_id", cardID),
		)
	}

	return result.Accepted, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "queuewatch/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

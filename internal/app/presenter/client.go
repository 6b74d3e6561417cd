package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/submission"
)

// Client talks to pulse-api on behalf of one signed-in user.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) FetchFeed(ctx context.Context) (feed.Feed, error) {
	var out feed.Feed
	if err := c.requestJSON(ctx, http.MethodGet, "/api/v1/feed", nil, &out, http.StatusOK); err != nil {
		return feed.Feed{}, err
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, req submission.Request) error {
	return c.requestJSON(ctx, http.MethodPost, "/api/v1/responses", req, nil, http.StatusAccepted)
}

func (c *Client) Snooze(ctx context.Context, refID, pulseType string) error {
	body := map[string]string{"refId": refID, "type": pulseType}
	return c.requestJSON(ctx, http.MethodPost, "/api/v1/pulses/snooze", body, nil, http.StatusOK)
}

func (c *Client) requestJSON(ctx context.Context, method, path string, payload, out any, expectedStatus int) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != expectedStatus {
		return fmt.Errorf("%s %s: unexpected status=%d body=%s", method, path, resp.StatusCode, truncate(string(responseBody), 240))
	}
	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return err
		}
	}
	return nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

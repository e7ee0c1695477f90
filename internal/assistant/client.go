// Package assistant is the HTTP client for the conversational-AI backend.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Request is one user turn sent to the backend.
type Request struct {
	ConversationID string         `json:"conversation_id"`
	WorkspaceID    string         `json:"workspace_id,omitempty"`
	Input          Input          `json:"input"`
	Context        map[string]any `json:"context,omitempty"`
}

type Input struct {
	Text string `json:"text"`
}

// Response carries the reply texts and the updated conversation context.
type Response struct {
	Output  Output         `json:"output"`
	Context map[string]any `json:"context,omitempty"`
}

type Output struct {
	Text []string `json:"text"`
}

// Replies returns the non-blank output texts.
func (r Response) Replies() []string {
	replies := make([]string, 0, len(r.Output.Text))
	for _, text := range r.Output.Text {
		if strings.TrimSpace(text) != "" {
			replies = append(replies, text)
		}
	}
	return replies
}

// Client calls POST {base}/message.
type Client struct {
	baseURL     string
	workspaceID string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a backend client.
func NewClient(log *slog.Logger, baseURL, workspaceID string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8081"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		workspaceID: strings.TrimSpace(workspaceID),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("service", "assistant")),
	}
}

// Message sends one turn. token, when set, is forwarded as a bearer credential.
func (c *Client) Message(ctx context.Context, req Request, token string) (Response, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return Response{}, fmt.Errorf("conversation id is required")
	}
	if req.WorkspaceID == "" {
		req.WorkspaceID = c.workspaceID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	url := c.baseURL + "/message"
	c.logger.Debug("assistant request", slog.String("url", url), slog.String("conversation_id", req.ConversationID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		if !strings.HasPrefix(token, "Bearer ") {
			token = "Bearer " + token
		}
		httpReq.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("assistant error", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return Response{}, fmt.Errorf("assistant error: status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 300))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger.Error("assistant response parse failed", slog.String("body_prefix", truncate(string(respBody), 300)), slog.Any("error", err))
		return Response{}, fmt.Errorf("failed to parse assistant response: %w", err)
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

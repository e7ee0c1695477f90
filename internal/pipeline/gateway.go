package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GatewayInvoker runs pipelines on a remote pipeline runtime.
type GatewayInvoker struct {
	baseURL    string
	logger     *slog.Logger
	httpClient *http.Client
}

type gatewayResponse struct {
	ActivationID string         `json:"activation_id"`
	Result       map[string]any `json:"result"`
	Error        string         `json:"error"`
}

// NewGatewayInvoker creates an invoker for the runtime at baseURL.
func NewGatewayInvoker(log *slog.Logger, baseURL string, timeout time.Duration) *GatewayInvoker {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://127.0.0.1:8081"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GatewayInvoker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     log.With(slog.String("service", "pipeline_gateway")),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Invoke posts params to the runtime and waits for the blocking activation.
func (g *GatewayInvoker) Invoke(ctx context.Context, name string, params map[string]any) (Activation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Activation{}, &InvokeError{Message: "pipeline name is required", Err: ErrPipelineNotFound}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return Activation{}, fmt.Errorf("encode pipeline params: %w", err)
	}
	endpoint := g.baseURL + "/pipelines/" + url.PathEscape(name) + "?blocking=true"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Activation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := AuthValue(params, AuthToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Activation{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Activation{}, err
	}
	var parsed gatewayResponse
	parseErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode == http.StatusNotFound && parsed.ActivationID == "" {
		return Activation{}, &InvokeError{Message: fmt.Sprintf("pipeline %q not found", name), Err: ErrPipelineNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("pipeline gateway error", slog.String("pipeline", name), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		message := strings.TrimSpace(parsed.Error)
		if message == "" {
			message = fmt.Sprintf("pipeline gateway error: status %d: %s", resp.StatusCode, strings.TrimSpace(truncate(string(respBody), 300)))
		}
		return Activation{}, &InvokeError{ActivationID: parsed.ActivationID, Message: message}
	}
	if parseErr != nil {
		return Activation{}, fmt.Errorf("failed to parse pipeline gateway response: %w", parseErr)
	}
	if strings.TrimSpace(parsed.Error) != "" {
		return Activation{}, &InvokeError{ActivationID: parsed.ActivationID, Message: parsed.Error}
	}
	return Activation{ID: parsed.ActivationID, Result: parsed.Result}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

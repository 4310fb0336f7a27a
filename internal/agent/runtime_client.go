package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeClientInterface is the surface the gateway and orchestration
// layers use to talk to the agent runtime service.
type RuntimeClientInterface interface {
	Invoke(ctx context.Context, req RunRequest) (string, error)
	StreamWebSocket(ctx context.Context, runID string) (*websocket.Conn, error)
	GetRunState(ctx context.Context, runID string) (*RunState, error)
	IsHealthy(ctx context.Context) bool
}

// RuntimeClient talks to the remote agent runtime that executes preview
// builds for generated interfaces.
type RuntimeClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// RunRequest starts a preview run for a thread's current interface
// version.
type RunRequest struct {
	TraceID     string                 `json:"trace_id"`
	ThreadID    string                 `json:"thread_id"`
	InterfaceID string                 `json:"interface_id"`
	VersionID   string                 `json:"version_id"`
	Spec        map[string]interface{} `json:"spec"`
}

// RunState is the terminal or in-progress state of a preview run.
type RunState struct {
	RunID      string                 `json:"run_id"`
	Status     string                 `json:"status"` // "completed", "failed", "running"
	PreviewURL string                 `json:"preview_url,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

type runtimeInvokeResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// StreamEvent is a WebSocket event emitted by the runtime while a run
// is executing.
type StreamEvent struct {
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// NewRuntimeClient reads AGENT_RUNTIME_URL and wires the circuit
// breaker around the runtime endpoints.
func NewRuntimeClient() *RuntimeClient {
	baseURL := os.Getenv("AGENT_RUNTIME_URL")
	if baseURL == "" {
		baseURL = "http://agent-runtime-service:8000"
		log.Printf("WARN: AGENT_RUNTIME_URL not set, defaulting to %s", baseURL)
	}

	settings := gobreaker.Settings{
		Name:        "agent-runtime",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &RuntimeClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer:  otel.Tracer("agent-runtime-client"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *RuntimeClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Invoke starts a preview run and returns the runtime's run ID.
func (c *RuntimeClient) Invoke(ctx context.Context, req RunRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "agent_runtime.invoke")
	defer span.End()

	span.SetAttributes(
		attribute.String("thread_id", req.ThreadID),
		attribute.String("interface_id", req.InterfaceID),
		attribute.String("trace_id", req.TraceID),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.invokeInternal(ctx, req)
	})

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to invoke agent runtime: %w", err)
	}

	runID := result.(string)
	span.SetAttributes(attribute.String("run_id", runID))

	return runID, nil
}

func (c *RuntimeClient) invokeInternal(ctx context.Context, req RunRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/runtime/invoke", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("agent runtime returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("agent runtime returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var invokeResp runtimeInvokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&invokeResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return invokeResp.RunID, nil
}

// StreamWebSocket opens a WebSocket over which the runtime streams run
// events until the run completes.
func (c *RuntimeClient) StreamWebSocket(ctx context.Context, runID string) (*websocket.Conn, error) {
	ctx, span := c.tracer.Start(ctx, "agent_runtime.stream_websocket")
	defer span.End()

	span.SetAttributes(attribute.String("run_id", runID))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.streamWebSocketInternal(ctx, runID)
	})

	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
	}

	return result.(*websocket.Conn), nil
}

func (c *RuntimeClient) streamWebSocketInternal(ctx context.Context, runID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	u.Path = fmt.Sprintf("/runtime/stream/%s", runID)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("failed to dial WebSocket (status %d): %s, error: %w", resp.StatusCode, string(bodyBytes), err)
		}
		return nil, fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	return conn, nil
}

// GetRunState fetches the run state over HTTP. Used as a fallback when
// the stream drops before a terminal event arrives.
func (c *RuntimeClient) GetRunState(ctx context.Context, runID string) (*RunState, error) {
	ctx, span := c.tracer.Start(ctx, "agent_runtime.get_run_state")
	defer span.End()

	span.SetAttributes(attribute.String("run_id", runID))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getRunStateInternal(ctx, runID)
	})

	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}

	return result.(*RunState), nil
}

func (c *RuntimeClient) getRunStateInternal(ctx context.Context, runID string) (*RunState, error) {
	url := fmt.Sprintf("%s/runtime/state/%s", c.baseURL, runID)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("agent runtime returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("agent runtime returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var state RunState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &state, nil
}

// IsHealthy checks whether the agent runtime is reachable.
func (c *RuntimeClient) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "agent_runtime.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		span.RecordError(err)
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))

	return healthy
}

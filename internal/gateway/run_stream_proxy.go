package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/glasspane/interface-orchestrator/internal/agent"
	"github.com/glasspane/interface-orchestrator/internal/auth"
	"github.com/glasspane/interface-orchestrator/internal/thread"
)

// RunStreamProxy bridges client WebSocket connections to the agent
// runtime's run event stream.
type RunStreamProxy struct {
	threads       thread.Store
	runtimeClient agent.RuntimeClientInterface
	jwtManager    *auth.JWTManager
	tracer        trace.Tracer
	upgrader      websocket.Upgrader
}

// NewRunStreamProxy creates a new run stream proxy
func NewRunStreamProxy(threads thread.Store, runtimeClient agent.RuntimeClientInterface, jwtManager *auth.JWTManager) *RunStreamProxy {
	return &RunStreamProxy{
		threads:       threads,
		runtimeClient: runtimeClient,
		jwtManager:    jwtManager,
		tracer:        otel.Tracer("run-stream-proxy"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the dashboard domains are final
				origin := r.Header.Get("Origin")
				log.Printf("WebSocket connection from origin: %s", origin)
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// StreamRun handles WebSocket /api/ws/threads/:thread_id/runs/:run_id
// @Summary Stream preview run progress
// @Description WebSocket endpoint to stream real-time preview build events from the agent runtime
// @Tags previews
// @Param thread_id path string true "Thread ID"
// @Param run_id path string true "Run ID"
// @Param Authorization header string true "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/threads/{thread_id}/runs/{run_id} [get]
func (p *RunStreamProxy) StreamRun(c *gin.Context) {
	ctx, span := p.tracer.Start(c.Request.Context(), "run_stream_proxy.stream_run")
	defer span.End()

	threadID := c.Param("thread_id")
	runID := c.Param("run_id")
	span.SetAttributes(
		attribute.String("thread_id", threadID),
		attribute.String("run_id", runID),
	)

	userID, err := p.validateJWTAndGetUserID(c)
	if err != nil {
		span.RecordError(err)
		log.Printf("JWT validation failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	span.SetAttributes(attribute.String("user_id", userID))

	if !p.canAccessThread(ctx, threadID, runID) {
		span.SetAttributes(attribute.Bool("access_denied", true))
		log.Printf("Access denied for user %s to thread %s run %s", userID, threadID, runID)
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	log.Printf("WebSocket connection request for thread_id: %s, run_id: %s, user_id: %s", threadID, runID, userID)

	clientConn, err := p.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer clientConn.Close()

	runtimeConn, err := p.runtimeClient.StreamWebSocket(ctx, runID)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to connect to agent runtime WebSocket: %v", err)
		p.sendErrorToClient(clientConn, "Failed to connect to agent runtime")
		return
	}
	defer runtimeConn.Close()

	log.Printf("Connected to agent runtime WebSocket for run: %s", runID)

	p.proxyRunEvents(ctx, clientConn, runtimeConn, threadID, runID)
}

// validateJWTAndGetUserID validates JWT token and returns user ID
func (p *RunStreamProxy) validateJWTAndGetUserID(c *gin.Context) (string, error) {
	// Query parameter first, header as fallback (browsers cannot set
	// headers on WebSocket upgrades).
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return "", fmt.Errorf("missing JWT token")
	}

	claims, err := p.jwtManager.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	return claims.UserID, nil
}

// canAccessThread checks that the run being streamed is the one
// recorded against the thread's state.
func (p *RunStreamProxy) canAccessThread(ctx context.Context, threadID, runID string) bool {
	if p.threads == nil {
		log.Printf("Thread store is nil, denying access for thread: %s", threadID)
		return false
	}

	state, found, err := p.threads.Get(ctx, threadID)
	if err != nil || !found {
		return false
	}

	return state.LastPreviewRunID == runID
}

// proxyRunEvents forwards runtime events to the client, extracting the
// preview result from terminal events to advance the thread's phase.
func (p *RunStreamProxy) proxyRunEvents(
	ctx context.Context,
	clientConn, runtimeConn *websocket.Conn,
	threadID, runID string,
) {
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "run_stream_proxy.proxy_run_events")
		defer span.End()
		span.SetAttributes(
			attribute.String("thread_id", threadID),
			attribute.String("run_id", runID),
		)
	}

	var previewVersionID string
	errChan := make(chan error, 2)

	// Client -> runtime (forward client messages)
	go func() {
		defer func() {
			log.Printf("Client->Runtime goroutine ended for run: %s", runID)
		}()

		for {
			messageType, message, err := clientConn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("Client connection closed normally for run: %s", runID)
				} else {
					log.Printf("Client connection read error for run %s: %v", runID, err)
				}
				errChan <- err
				return
			}

			if err := runtimeConn.WriteMessage(messageType, message); err != nil {
				log.Printf("Failed to forward message to runtime for run %s: %v", runID, err)
				errChan <- err
				return
			}
		}
	}()

	// Runtime -> client (forward events and extract the preview result)
	go func() {
		defer func() {
			log.Printf("Runtime->Client goroutine ended for run: %s", runID)
		}()

		for {
			var event agent.StreamEvent
			if err := runtimeConn.ReadJSON(&event); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("Runtime connection closed normally for run: %s", runID)
				} else {
					log.Printf("Runtime connection read error for run %s: %v", runID, err)
				}
				errChan <- err
				return
			}

			if event.EventType == "on_preview_ready" {
				if versionID, ok := event.Data["version_id"].(string); ok {
					previewVersionID = versionID
					log.Printf("Extracted preview version %s for run: %s", versionID, runID)
				}
			}

			if err := clientConn.WriteJSON(event); err != nil {
				log.Printf("Failed to forward event to client for run %s: %v", runID, err)
				errChan <- err
				return
			}

			if event.EventType == "end" {
				log.Printf("Received end event for run: %s, advancing thread phase", runID)
				go p.recordPreviewReady(context.Background(), threadID, previewVersionID)

				errChan <- fmt.Errorf("run completed")
				return
			}
		}
	}()

	err := <-errChan
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		if err.Error() != "run completed" {
			if span != nil {
				span.RecordError(err)
			}
			log.Printf("WebSocket proxy error for run %s: %v", runID, err)
		}
	}

	log.Printf("WebSocket proxy session ended for run: %s", runID)
}

// recordPreviewReady moves the thread to preview_ready once the runtime
// reports the build finished.
func (p *RunStreamProxy) recordPreviewReady(ctx context.Context, threadID, versionID string) {
	if p.threads == nil {
		log.Printf("Thread store is nil, skipping state update for thread: %s", threadID)
		return
	}

	previewReady := thread.PhasePreviewReady
	patch := thread.Patch{Phase: &previewReady}
	if versionID != "" {
		patch.PreviewVersionID = &versionID
	}

	if _, err := p.threads.Update(ctx, threadID, patch); err != nil {
		log.Printf("Failed to record preview completion for thread %s: %v", threadID, err)
		return
	}

	log.Printf("Thread %s advanced to preview_ready (version: %s)", threadID, versionID)
}

// sendErrorToClient sends an error message to the WebSocket client
func (p *RunStreamProxy) sendErrorToClient(conn *websocket.Conn, message string) {
	errorEvent := map[string]interface{}{
		"event_type": "error",
		"data": map[string]interface{}{
			"error": message,
		},
	}

	if err := conn.WriteJSON(errorEvent); err != nil {
		log.Printf("Failed to send error to client: %v", err)
	}
}

// IsHealthy checks if the agent runtime is healthy
func (p *RunStreamProxy) IsHealthy(ctx context.Context) bool {
	return p.runtimeClient.IsHealthy(ctx)
}

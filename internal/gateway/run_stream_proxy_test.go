package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/agent"
	"github.com/glasspane/interface-orchestrator/internal/auth"
	"github.com/glasspane/interface-orchestrator/internal/thread"
)

// MockRuntimeClient implements a mock agent runtime client for testing
type MockRuntimeClient struct {
	invokeResponse  string
	invokeError     error
	wsConnResponse  *websocket.Conn
	wsConnError     error
	stateResponse   *agent.RunState
	stateError      error
	healthyResponse bool
}

func (m *MockRuntimeClient) Invoke(ctx context.Context, req agent.RunRequest) (string, error) {
	return m.invokeResponse, m.invokeError
}

func (m *MockRuntimeClient) StreamWebSocket(ctx context.Context, runID string) (*websocket.Conn, error) {
	return m.wsConnResponse, m.wsConnError
}

func (m *MockRuntimeClient) GetRunState(ctx context.Context, runID string) (*agent.RunState, error) {
	return m.stateResponse, m.stateError
}

func (m *MockRuntimeClient) IsHealthy(ctx context.Context) bool {
	return m.healthyResponse
}

func withTestJWTSecret(t *testing.T) {
	t.Helper()
	originalSecret := os.Getenv("JWT_SECRET")
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-purposes-only")
	t.Cleanup(func() {
		if originalSecret == "" {
			os.Unsetenv("JWT_SECRET")
		} else {
			os.Setenv("JWT_SECRET", originalSecret)
		}
	})
}

func TestNewRunStreamProxy(t *testing.T) {
	withTestJWTSecret(t)

	jwtManager, err := auth.NewJWTManager()
	require.NoError(t, err)

	proxy := NewRunStreamProxy(thread.NewMemoryStore(), &MockRuntimeClient{}, jwtManager)

	assert.NotNil(t, proxy)
	assert.NotNil(t, proxy.runtimeClient)
	assert.NotNil(t, proxy.jwtManager)
	assert.NotNil(t, proxy.tracer)
	assert.Equal(t, 10*time.Second, proxy.upgrader.HandshakeTimeout)
}

func TestRunStreamProxy_ValidateJWTAndGetUserID(t *testing.T) {
	withTestJWTSecret(t)

	jwtManager, err := auth.NewJWTManager()
	require.NoError(t, err)

	proxy := NewRunStreamProxy(thread.NewMemoryStore(), &MockRuntimeClient{}, jwtManager)

	tests := []struct {
		name          string
		setupRequest  func() *gin.Context
		expectedError string
		expectedUser  string
	}{
		{
			name: "valid_jwt_in_query_param",
			setupRequest: func() *gin.Context {
				token, err := jwtManager.GenerateToken(
					context.Background(),
					"test-user-id",
					"test@example.com",
					[]string{"user"},
					time.Hour,
				)
				require.NoError(t, err)

				gin.SetMode(gin.TestMode)
				w := httptest.NewRecorder()
				c, _ := gin.CreateTestContext(w)
				req := httptest.NewRequest("GET", "/?token="+token, nil)
				c.Request = req
				return c
			},
			expectedUser: "test-user-id",
		},
		{
			name: "valid_jwt_in_header",
			setupRequest: func() *gin.Context {
				token, err := jwtManager.GenerateToken(
					context.Background(),
					"test-user-id-2",
					"test2@example.com",
					[]string{"user"},
					time.Hour,
				)
				require.NoError(t, err)

				gin.SetMode(gin.TestMode)
				w := httptest.NewRecorder()
				c, _ := gin.CreateTestContext(w)
				req := httptest.NewRequest("GET", "/", nil)
				req.Header.Set("Authorization", "Bearer "+token)
				c.Request = req
				return c
			},
			expectedUser: "test-user-id-2",
		},
		{
			name: "missing_jwt",
			setupRequest: func() *gin.Context {
				gin.SetMode(gin.TestMode)
				w := httptest.NewRecorder()
				c, _ := gin.CreateTestContext(w)
				req := httptest.NewRequest("GET", "/", nil)
				c.Request = req
				return c
			},
			expectedError: "missing JWT token",
		},
		{
			name: "invalid_jwt",
			setupRequest: func() *gin.Context {
				gin.SetMode(gin.TestMode)
				w := httptest.NewRecorder()
				c, _ := gin.CreateTestContext(w)
				req := httptest.NewRequest("GET", "/?token=invalid-token", nil)
				c.Request = req
				return c
			},
			expectedError: "invalid JWT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.setupRequest()

			userID, err := proxy.validateJWTAndGetUserID(c)

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedUser, userID)
			}
		})
	}
}

func TestRunStreamProxy_CanAccessThread(t *testing.T) {
	threads := thread.NewMemoryStore()
	proxy := NewRunStreamProxy(threads, &MockRuntimeClient{}, nil)
	ctx := context.Background()

	runID := "run-42"
	_, err := threads.Update(ctx, "t1", thread.Patch{LastPreviewRunID: &runID})
	require.NoError(t, err)

	assert.True(t, proxy.canAccessThread(ctx, "t1", "run-42"))
	assert.False(t, proxy.canAccessThread(ctx, "t1", "run-99"))
	assert.False(t, proxy.canAccessThread(ctx, "unknown-thread", "run-42"))
}

func TestRunStreamProxy_CanAccessThread_NilStore(t *testing.T) {
	proxy := &RunStreamProxy{threads: nil}
	assert.False(t, proxy.canAccessThread(context.Background(), "t1", "run-1"))
}

func TestRunStreamProxy_SendErrorToClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade WebSocket: %v", err)
			return
		}
		defer conn.Close()

		var errorEvent map[string]interface{}
		err = conn.ReadJSON(&errorEvent)
		if err != nil {
			t.Errorf("Failed to read JSON: %v", err)
			return
		}

		assert.Equal(t, "error", errorEvent["event_type"])
		data, ok := errorEvent["data"].(map[string]interface{})
		assert.True(t, ok)
		assert.Equal(t, "Test error message", data["error"])
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Scheme = "ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	proxy := NewRunStreamProxy(thread.NewMemoryStore(), &MockRuntimeClient{}, nil)
	proxy.sendErrorToClient(conn, "Test error message")
}

func TestRunStreamProxy_IsHealthy(t *testing.T) {
	tests := []struct {
		name            string
		clientHealthy   bool
		expectedHealthy bool
	}{
		{
			name:            "healthy_runtime",
			clientHealthy:   true,
			expectedHealthy: true,
		},
		{
			name:            "unhealthy_runtime",
			clientHealthy:   false,
			expectedHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &MockRuntimeClient{
				healthyResponse: tt.clientHealthy,
			}

			proxy := NewRunStreamProxy(thread.NewMemoryStore(), mockClient, nil)

			result := proxy.IsHealthy(context.Background())
			assert.Equal(t, tt.expectedHealthy, result)
		})
	}
}

func TestRunStreamProxy_RecordPreviewReady(t *testing.T) {
	threads := thread.NewMemoryStore()
	proxy := NewRunStreamProxy(threads, &MockRuntimeClient{}, nil)
	ctx := context.Background()

	proxy.recordPreviewReady(ctx, "t1", "ver-7")

	state, found, err := threads.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, thread.PhasePreviewReady, state.Phase)
	assert.Equal(t, "ver-7", state.PreviewVersionID)
}

func TestRunStreamProxy_RecordPreviewReady_NilStore(t *testing.T) {
	proxy := &RunStreamProxy{threads: nil}

	assert.NotPanics(t, func() {
		proxy.recordPreviewReady(context.Background(), "t1", "ver-1")
	})
}

func TestRunStreamProxy_ProxyRunEvents(t *testing.T) {
	clientServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}))
	defer clientServer.Close()

	runtimeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		events := []agent.StreamEvent{
			{
				EventType: "on_build_progress",
				Data: map[string]interface{}{
					"stage": "bundling",
				},
			},
			{
				EventType: "on_preview_ready",
				Data: map[string]interface{}{
					"version_id": "ver-3",
				},
			},
			{
				EventType: "end",
				Data:      map[string]interface{}{},
			},
		}

		for _, event := range events {
			if err := conn.WriteJSON(event); err != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer runtimeServer.Close()

	clientURL, _ := url.Parse(clientServer.URL)
	clientURL.Scheme = "ws"
	clientConn, _, err := websocket.DefaultDialer.Dial(clientURL.String(), nil)
	require.NoError(t, err)
	defer clientConn.Close()

	runtimeURL, _ := url.Parse(runtimeServer.URL)
	runtimeURL.Scheme = "ws"
	runtimeConn, _, err := websocket.DefaultDialer.Dial(runtimeURL.String(), nil)
	require.NoError(t, err)
	defer runtimeConn.Close()

	threads := thread.NewMemoryStore()
	proxy := &RunStreamProxy{threads: threads}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go proxy.proxyRunEvents(ctx, clientConn, runtimeConn, "t1", "run-1")

	<-ctx.Done()

	// The end event should have advanced the thread with the version
	// extracted from on_preview_ready.
	state, found, err := threads.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, thread.PhasePreviewReady, state.Phase)
	assert.Equal(t, "ver-3", state.PreviewVersionID)
}

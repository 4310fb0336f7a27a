package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/glasspane/interface-orchestrator/internal/auth"
	"github.com/glasspane/interface-orchestrator/internal/editbatch"
	"github.com/glasspane/interface-orchestrator/internal/models"
	"github.com/glasspane/interface-orchestrator/internal/orchestration"
	"github.com/glasspane/interface-orchestrator/internal/thread"
	"github.com/glasspane/interface-orchestrator/internal/tools"
)

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	orchestrationService *orchestration.Service
	jwtManager           *auth.JWTManager
	pool                 *pgxpool.Pool

	// One debounced batcher per (interface, user) for queued interactive
	// edits, so each flushed batch is attributed to the user who queued it.
	batchersMu sync.Mutex
	batchers   map[string]*editbatch.Batcher
}

// NewHandler creates a new gateway handler
func NewHandler(orchestrationService *orchestration.Service, jwtManager *auth.JWTManager, pool *pgxpool.Pool) *Handler {
	return &Handler{
		orchestrationService: orchestrationService,
		jwtManager:           jwtManager,
		pool:                 pool,
		batchers:             make(map[string]*editbatch.Batcher),
	}
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	var user models.User
	err := h.pool.QueryRow(c.Request.Context(),
		`SELECT id, org_id, name, email, hashed_password, created_at FROM users WHERE email = $1`,
		req.Email,
	).Scan(&user.ID, &user.OrgID, &user.Name, &user.Email, &user.HashedPassword, &user.CreatedAt)

	if err != nil {
		log.Printf(`{"level":"warn","message":"User not found","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Printf(`{"level":"warn","message":"Invalid password","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid email or password", Code: models.ErrCodeUnauthorized})
		return
	}

	expiry := 24 * time.Hour
	token, err := h.jwtManager.GenerateToken(
		c.Request.Context(),
		user.ID,
		user.Email,
		[]string{"user"},
		expiry,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate token", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(expiry),
		User:      user.ToUserInfo(),
	})
}

// RefreshToken godoc
// @Summary Refresh token
// @Description Exchange a valid JWT for a fresh one
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Missing authorization header", Code: models.ErrCodeUnauthorized})
		return
	}

	token, err := h.jwtManager.RefreshToken(c.Request.Context(), authHeader[len(prefix):], 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token", Code: models.ErrCodeUnauthorized})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// CreateInterfaceRequest represents an interface creation request
type CreateInterfaceRequest struct {
	OrgID       string `json:"org_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// InterfaceResponse represents an interface response
type InterfaceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateInterface godoc
// @Summary Create interface
// @Description Create a new dashboard interface
// @Tags interfaces
// @Accept json
// @Produce json
// @Param request body CreateInterfaceRequest true "Interface details"
// @Success 201 {object} InterfaceResponse
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /interfaces [post]
func (h *Handler) CreateInterface(c *gin.Context) {
	var req CreateInterfaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	userID, ok := h.authenticatedUserID(c)
	if !ok {
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid org ID", Code: models.ErrCodeInvalidRequest})
		return
	}

	interfaceID, err := h.orchestrationService.CreateInterface(c.Request.Context(), orgID, req.Name, req.Description, userID)
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to create interface","error":"%v","user_id":"%s"}`, err, userID)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to create interface", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusCreated, InterfaceResponse{
		ID:          interfaceID.String(),
		Name:        req.Name,
		Description: req.Description,
	})
}

// GetInterface godoc
// @Summary Get interface
// @Description Fetch a dashboard interface by ID
// @Tags interfaces
// @Produce json
// @Param id path string true "Interface ID"
// @Success 200 {object} orchestration.Interface
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /interfaces/{id} [get]
func (h *Handler) GetInterface(c *gin.Context) {
	interfaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid interface ID", Code: models.ErrCodeInvalidRequest})
		return
	}

	iface, err := h.orchestrationService.GetInterface(c.Request.Context(), interfaceID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Interface not found", Code: models.ErrCodeInterfaceNotFound})
		return
	}

	c.JSON(http.StatusOK, iface)
}

// GetVersions godoc
// @Summary List interface versions
// @Description List the append-only version history for an interface, newest first
// @Tags interfaces
// @Produce json
// @Param id path string true "Interface ID"
// @Success 200 {array} orchestration.Version
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /interfaces/{id}/versions [get]
func (h *Handler) GetVersions(c *gin.Context) {
	interfaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid interface ID", Code: models.ErrCodeInvalidRequest})
		return
	}

	versions, err := h.orchestrationService.GetVersions(c.Request.Context(), interfaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list versions", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, versions)
}

// GetCurrentSpec godoc
// @Summary Get current spec
// @Description Fetch the latest persisted spec for an interface
// @Tags interfaces
// @Produce json
// @Param id path string true "Interface ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /interfaces/{id}/spec [get]
func (h *Handler) GetCurrentSpec(c *gin.Context) {
	specJSON, designTokens, versionID, err := h.orchestrationService.CurrentSpec(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tools.ErrInterfaceNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Interface has no versions", Code: models.ErrCodeInterfaceNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load spec", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"spec_json":     specJSON,
		"design_tokens": designTokens,
		"version_id":    versionID,
	})
}

// RunTurn godoc
// @Summary Run conversation turn
// @Description Execute one conversational turn against the builder agent
// @Tags threads
// @Accept json
// @Produce json
// @Param request body models.TurnRequest true "Turn request"
// @Success 200 {object} models.TurnResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /turns [post]
func (h *Handler) RunTurn(c *gin.Context) {
	var req models.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	result, err := h.orchestrationService.RunTurn(c.Request.Context(), req.ThreadID, req.InterfaceID, req.Message, req.Context)
	if err != nil {
		var execErr *tools.ExecutionError
		if errors.As(err, &execErr) {
			c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
				Error: execErr.Message,
				Code:  models.ErrCodeValidationFailed,
				Details: map[string]string{
					"tool": execErr.ToolName,
				},
			})
			return
		}
		log.Printf(`{"level":"error","message":"Turn failed","thread_id":"%s","error":"%v"}`, req.ThreadID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Turn failed", Code: models.ErrCodeInternalError})
		return
	}

	steps := make([]models.TurnStep, 0, len(result.Steps))
	for _, step := range result.Steps {
		steps = append(steps, models.TurnStep{Tool: step.Tool, Input: step.Input, Output: step.Output})
	}

	c.JSON(http.StatusOK, models.TurnResponse{
		ThreadID:          req.ThreadID,
		Text:              result.Text,
		Steps:             steps,
		SelectionComplete: result.SelectionComplete,
		Phase:             string(result.Phase),
		VersionID:         result.VersionID,
	})
}

// ApplyEdits godoc
// @Summary Apply edit batch
// @Description Apply a batch of interactive edit actions and persist the result as a new version
// @Tags edits
// @Accept json
// @Produce json
// @Param request body models.EditBatchRequest true "Edit batch"
// @Success 200 {object} models.EditBatchResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /edits [post]
func (h *Handler) ApplyEdits(c *gin.Context) {
	var req models.EditBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}
	if len(req.Actions) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Batch must contain at least one action", Code: models.ErrCodeInvalidRequest})
		return
	}

	userID, ok := h.authenticatedUserID(c)
	if !ok {
		return
	}

	actions := make([]editbatch.Action, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, editbatch.Action{
			Type:     editbatch.ActionType(a.Type),
			WidgetID: a.WidgetID,
			Payload:  a.Payload,
		})
	}

	result, err := h.orchestrationService.ApplyEditBatch(c.Request.Context(), req.InterfaceID, userID.String(), actions)
	if err != nil {
		if errors.Is(err, tools.ErrInterfaceNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Interface has no versions", Code: models.ErrCodeInterfaceNotFound})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeSpecRejected})
		return
	}

	c.JSON(http.StatusOK, models.EditBatchResponse{
		InterfaceID:   req.InterfaceID,
		VersionID:     result.VersionID,
		VersionNumber: result.VersionNumber,
		SpecJSON:      result.SpecJSON,
		Warnings:      result.Warnings,
	})
}

// QueueEditRequest queues one interactive edit for debounced delivery.
type QueueEditRequest struct {
	InterfaceID string                 `json:"interface_id" binding:"required"`
	Type        string                 `json:"type" binding:"required"`
	WidgetID    string                 `json:"widget_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// QueueEdit godoc
// @Summary Queue interactive edit
// @Description Queue a single edit action; queued actions are coalesced and flushed after the debounce window
// @Tags edits
// @Accept json
// @Produce json
// @Param request body QueueEditRequest true "Edit action"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /edits/queue [post]
func (h *Handler) QueueEdit(c *gin.Context) {
	var req QueueEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	userID, ok := h.authenticatedUserID(c)
	if !ok {
		return
	}

	batcher := h.batcherFor(req.InterfaceID, userID.String())
	batcher.Add(editbatch.Action{
		Type:     editbatch.ActionType(req.Type),
		WidgetID: req.WidgetID,
		Payload:  req.Payload,
	})

	c.JSON(http.StatusAccepted, gin.H{
		"interface_id": req.InterfaceID,
		"pending":      batcher.Pending(),
	})
}

// FlushEdits godoc
// @Summary Flush queued edits
// @Description Synchronously flush any pending queued edits for an interface
// @Tags edits
// @Produce json
// @Param id path string true "Interface ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /interfaces/{id}/edits/flush [post]
func (h *Handler) FlushEdits(c *gin.Context) {
	interfaceID := c.Param("id")

	userID, ok := h.authenticatedUserID(c)
	if !ok {
		return
	}

	h.batchersMu.Lock()
	batcher := h.batchers[batcherKey(interfaceID, userID.String())]
	h.batchersMu.Unlock()

	if batcher == nil {
		c.JSON(http.StatusOK, gin.H{"interface_id": interfaceID, "flushed": false})
		return
	}

	if err := batcher.FlushPendingActions(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeSpecRejected})
		return
	}

	c.JSON(http.StatusOK, gin.H{"interface_id": interfaceID, "flushed": true})
}

// batcherKey scopes a batcher to one user's edits on one interface.
// Without the user in the key, a shared batcher would persist every
// user's edits under whoever queued first.
func batcherKey(interfaceID, userID string) string {
	return interfaceID + "\x00" + userID
}

// batcherFor returns the debounced batcher for an interface and acting
// user, creating it on first use. The flush callback persists the
// drained batch as a new version attributed to that user.
func (h *Handler) batcherFor(interfaceID, userID string) *editbatch.Batcher {
	h.batchersMu.Lock()
	defer h.batchersMu.Unlock()

	key := batcherKey(interfaceID, userID)
	if batcher, ok := h.batchers[key]; ok {
		return batcher
	}

	batcher := editbatch.NewBatcher(
		func(ctx context.Context, actions []editbatch.Action) error {
			_, err := h.orchestrationService.ApplyEditBatch(ctx, interfaceID, userID, actions)
			return err
		},
		editbatch.WithErrorFunc(func(err error, actions []editbatch.Action) {
			log.Printf(`{"level":"error","message":"Queued edit batch failed","interface_id":"%s","actions":%d,"error":"%v"}`, interfaceID, len(actions), err)
		}),
	)
	h.batchers[key] = batcher
	return batcher
}

// ValidateSpec godoc
// @Summary Validate spec
// @Description Run the render-validation gate over a raw spec without persisting it
// @Tags validation
// @Accept json
// @Produce json
// @Param request body models.ValidateRequest true "Raw spec"
// @Success 200 {object} models.ValidateResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /validate [post]
func (h *Handler) ValidateSpec(c *gin.Context) {
	var req models.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	result := h.orchestrationService.ValidateSpec(c.Request.Context(), req.Spec)

	resp := models.ValidateResponse{
		Warnings:          result.Warnings,
		SchemaIssues:      result.SchemaIssues,
		DroppedComponents: make([]models.DroppedComponent, 0, len(result.DroppedComponents)),
	}
	for _, dropped := range result.DroppedComponents {
		resp.DroppedComponents = append(resp.DroppedComponents, models.DroppedComponent{
			ID:     dropped.ID,
			Type:   dropped.Type,
			Reason: dropped.Reason,
		})
	}
	if result.Spec != nil {
		encoded, err := tools.SpecToMap(result.Spec)
		if err == nil {
			resp.Spec = encoded
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetThreadState godoc
// @Summary Get thread state
// @Description Fetch the conversational state for a thread
// @Tags threads
// @Produce json
// @Param thread_id path string true "Thread ID"
// @Success 200 {object} thread.State
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /threads/{thread_id}/state [get]
func (h *Handler) GetThreadState(c *gin.Context) {
	threadID := c.Param("thread_id")

	state, found, err := h.orchestrationService.Threads.Get(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load thread state", Code: models.ErrCodeInternalError})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Thread not found", Code: models.ErrCodeThreadNotFound})
		return
	}

	c.JSON(http.StatusOK, state)
}

// PatchThreadState godoc
// @Summary Patch thread state
// @Description Shallow-merge a partial update into a thread's state
// @Tags threads
// @Accept json
// @Produce json
// @Param thread_id path string true "Thread ID"
// @Param request body thread.Patch true "Partial state"
// @Success 200 {object} thread.State
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /threads/{thread_id}/state [patch]
func (h *Handler) PatchThreadState(c *gin.Context) {
	threadID := c.Param("thread_id")

	var patch thread.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Code: models.ErrCodeInvalidRequest})
		return
	}

	state, err := h.orchestrationService.Threads.Update(c.Request.Context(), threadID, patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update thread state", Code: models.ErrCodeInternalError})
		return
	}

	c.JSON(http.StatusOK, state)
}

// ResetThreadState godoc
// @Summary Reset thread state
// @Description Remove a thread's conversational state
// @Tags threads
// @Param thread_id path string true "Thread ID"
// @Success 204
// @Security BearerAuth
// @Router /threads/{thread_id}/state [delete]
func (h *Handler) ResetThreadState(c *gin.Context) {
	threadID := c.Param("thread_id")

	if err := h.orchestrationService.Threads.Reset(c.Request.Context(), threadID); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to reset thread state", Code: models.ErrCodeInternalError})
		return
	}

	c.Status(http.StatusNoContent)
}

// StartPreview godoc
// @Summary Start preview run
// @Description Start a preview build of the interface's latest version in the agent runtime
// @Tags previews
// @Produce json
// @Param thread_id path string true "Thread ID"
// @Param interface_id query string true "Interface ID"
// @Success 202 {object} map[string]interface{}
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /threads/{thread_id}/preview [post]
func (h *Handler) StartPreview(c *gin.Context) {
	threadID := c.Param("thread_id")
	interfaceID := c.Query("interface_id")
	if interfaceID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "interface_id is required", Code: models.ErrCodeInvalidRequest})
		return
	}

	runID, err := h.orchestrationService.StartPreviewRun(c.Request.Context(), threadID, interfaceID)
	if err != nil {
		if errors.Is(err, tools.ErrInterfaceNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Interface has no versions", Code: models.ErrCodeInterfaceNotFound})
			return
		}
		log.Printf(`{"level":"error","message":"Failed to start preview run","thread_id":"%s","error":"%v"}`, threadID, err)
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "Agent runtime unavailable", Code: models.ErrCodeRuntimeDown})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"thread_id": threadID,
		"run_id":    runID,
	})
}

// authenticatedUserID reads the user ID the auth middleware stored on
// the context.
func (h *Handler) authenticatedUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "User not authenticated", Code: models.ErrCodeUnauthorized})
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDVal.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid user ID", Code: models.ErrCodeUnauthorized})
		return uuid.Nil, false
	}
	return userID, true
}

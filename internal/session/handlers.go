package session

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Obagson/code-nest/internal/pagination"
)

// Handler provides HTTP endpoints for the session lifecycle.
type Handler struct {
	service *Service
}

// NewHandler creates a new session handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the public read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/sessions", h.List)
	r.GET("/sessions/:id", h.Get)
	r.GET("/developers/:account/sessions", h.ListByDeveloper)
}

// RegisterProtectedRoutes sets up the lifecycle routes. These mutate
// session state and require a caller identity.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.Create)
	r.POST("/sessions/:id/join", h.Join)
	r.POST("/sessions/:id/confirm", h.Confirm)
	r.POST("/sessions/:id/cancel", h.Cancel)
	r.POST("/sessions/:id/dispute", h.Dispute)
	r.POST("/sessions/:id/resolve", h.Resolve)
	r.POST("/sessions/:id/rate", h.Rate)
}

// CreateRequest is the session proposal payload.
type CreateRequest struct {
	Title            string   `json:"title" binding:"required"`
	Description      string   `json:"description"`
	HourlyRateCents  int64    `json:"hourlyRateCents" binding:"required"`
	EstimatedMinutes int      `json:"estimatedMinutes" binding:"required"`
	FocusAreas       []string `json:"focusAreas"`
}

// Create handles POST /v1/sessions
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	sess, err := h.service.Create(c.Request.Context(), caller(c), CreateParams{
		Title:            req.Title,
		Description:      req.Description,
		HourlyRateCents:  req.HourlyRateCents,
		EstimatedMinutes: req.EstimatedMinutes,
		FocusAreas:       req.FocusAreas,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// Get handles GET /v1/sessions/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// List handles GET /v1/sessions?status=proposed&limit=50&cursor=...
func (h *Handler) List(c *gin.Context) {
	sessions, nextCursor, err := h.service.List(c.Request.Context(), c.Query("status"), c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(sessions, nextCursor))
}

// ListByDeveloper handles GET /v1/developers/:account/sessions
func (h *Handler) ListByDeveloper(c *gin.Context) {
	sessions, nextCursor, err := h.service.ListByDeveloper(c.Request.Context(), c.Param("account"), c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(sessions, nextCursor))
}

func listResponse(sessions []*Session, nextCursor string) gin.H {
	resp := gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	}
	if nextCursor != "" {
		resp["nextCursor"] = nextCursor
	}
	return resp
}

// Join handles POST /v1/sessions/:id/join
func (h *Handler) Join(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.Join(c.Request.Context(), id, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Confirm handles POST /v1/sessions/:id/confirm
func (h *Handler) Confirm(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.ConfirmCompletion(c.Request.Context(), id, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Cancel handles POST /v1/sessions/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.service.Cancel(c.Request.Context(), id, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DisputeRequest is the dispute initiation payload.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Dispute handles POST /v1/sessions/:id/dispute
func (h *Handler) Dispute(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}
	dispute, err := h.service.InitiateDispute(c.Request.Context(), id, caller(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// ResolveRequest is the dispute resolution payload. Percentages must sum
// to 100.
type ResolveRequest struct {
	CreatorPercentage *int `json:"creatorPercentage" binding:"required"`
	PartnerPercentage *int `json:"partnerPercentage" binding:"required"`
}

// Resolve handles POST /v1/sessions/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "creatorPercentage and partnerPercentage are required",
		})
		return
	}
	sess, err := h.service.ResolveDispute(c.Request.Context(), id, caller(c), *req.CreatorPercentage, *req.PartnerPercentage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// RateRequest is the session rating payload. Rated defaults to the
// caller's counterparty when omitted.
type RateRequest struct {
	Score    *int   `json:"score" binding:"required"`
	Rated    string `json:"rated"`
	Feedback string `json:"feedback"`
}

// Rate handles POST /v1/sessions/:id/rate
func (h *Handler) Rate(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "score is required",
		})
		return
	}
	if err := h.service.Rate(c.Request.Context(), id, caller(c), req.Rated, *req.Score, req.Feedback); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func caller(c *gin.Context) string {
	return c.GetString("developerAccount")
}

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "session id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}
	return limit
}

// respondError maps service errors to HTTP responses. Every error kind
// gets its own code so clients can recover programmatically.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrSelfJoin):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "self_join", "message": err.Error()})
	case errors.Is(err, ErrSelfReview):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "self_review", "message": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, ErrAlreadyJoined):
		c.JSON(http.StatusConflict, gin.H{
			"error": "already_joined", "message": err.Error()})
	case errors.Is(err, ErrDisputeExists):
		c.JSON(http.StatusConflict, gin.H{
			"error": "dispute_exists", "message": err.Error()})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_duration", "message": err.Error()})
	case errors.Is(err, ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_rating", "message": err.Error()})
	case errors.Is(err, ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_params", "message": err.Error()})
	case errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_params", "message": err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "insufficient_funds", "message": err.Error()})
	case errors.Is(err, ErrExpired):
		c.JSON(http.StatusGone, gin.H{
			"error": "expired", "message": err.Error()})
	case errors.Is(err, ErrPaymentFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "payment_failed", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal_error", "message": err.Error()})
	}
}

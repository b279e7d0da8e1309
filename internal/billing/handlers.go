package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Handler provides HTTP endpoints for balance top-ups.
type Handler struct {
	service *Service
}

// NewHandler creates a new billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up billing routes. The webhook route must be
// registered outside any identity middleware: Stripe authenticates with
// its signature header, not a developer account.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/developers/:account/topup", h.CreateTopUp)
}

// RegisterWebhook sets up the Stripe webhook endpoint.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/billing/webhook", h.Webhook)
}

// TopUpRequest is the top-up payload.
type TopUpRequest struct {
	AmountCents int64 `json:"amountCents" binding:"required"`
}

// CreateTopUp handles POST /v1/developers/:account/topup
func (h *Handler) CreateTopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amountCents is required",
		})
		return
	}

	topUp, err := h.service.CreateTopUp(c.Request.Context(), c.Param("account"), req.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, ErrAmountOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_params",
				"message": err.Error(),
			})
		case errors.Is(err, ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "billing_unavailable",
				"message": "billing is not configured",
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "payment_failed",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusCreated, topUp)
}

// Webhook handles POST /v1/billing/webhook
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.service.WebhookSecret())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}

	if err := h.service.ProcessEvent(c.Request.Context(), event); err != nil {
		// Non-2xx makes Stripe retry the delivery
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

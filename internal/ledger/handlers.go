package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Obagson/code-nest/internal/idgen"
	"github.com/Obagson/code-nest/internal/pagination"
)

// Handler provides HTTP endpoints for balance queries and demo deposits.
type Handler struct {
	ledger       *Ledger
	demoDeposits bool
}

// NewHandler creates a new ledger handler. When demoDeposits is true the
// POST deposit endpoint is registered, allowing balances to be credited
// without a billing provider (development mode only).
func NewHandler(ledger *Ledger, demoDeposits bool) *Handler {
	return &Handler{ledger: ledger, demoDeposits: demoDeposits}
}

// RegisterRoutes sets up ledger routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/developers/:account/balance", h.GetBalance)
	r.GET("/developers/:account/history", h.GetHistory)
	if h.demoDeposits {
		r.POST("/developers/:account/deposit", h.Deposit)
	}
}

// GetBalance handles GET /v1/developers/:account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), c.Param("account"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// GetHistory handles GET /v1/developers/:account/history
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	entries, nextCursor, err := h.ledger.GetHistory(c.Request.Context(), c.Param("account"), c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_params",
				"message": "malformed cursor",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	resp := gin.H{
		"entries": entries,
		"count":   len(entries),
	}
	if nextCursor != "" {
		resp["nextCursor"] = nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// DepositRequest is the demo deposit payload.
type DepositRequest struct {
	AmountCents int64 `json:"amountCents" binding:"required"`
}

// Deposit handles POST /v1/developers/:account/deposit (development only)
func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amountCents is required",
		})
		return
	}

	reference := idgen.WithPrefix("dep_")
	err := h.ledger.Deposit(c.Request.Context(), c.Param("account"), req.AmountCents, reference)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_params",
				"message": "amount must be greater than zero",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reference": reference})
}

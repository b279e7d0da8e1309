package profile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for developer profiles and ratings.
type Handler struct {
	service *Service
}

// NewHandler creates a new profile handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up profile routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/developers/:account/profile", h.GetProfile)
	r.GET("/developers/:account/ratings", h.GetRatings)
}

// GetProfile handles GET /v1/developers/:account/profile
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.service.GetProfile(c.Request.Context(), c.Param("account"))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "developer has no recorded activity",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetRatings handles GET /v1/developers/:account/ratings
func (h *Handler) GetRatings(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	ratings, err := h.service.ListRatings(c.Request.Context(), c.Param("account"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ratings": ratings,
		"count":   len(ratings),
	})
}

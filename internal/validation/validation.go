// Package validation provides input validation for the code-nest API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxTitleLength bounds session titles
const MaxTitleLength = 200

// MaxTextLength bounds free-text fields (descriptions, dispute reasons, feedback)
const MaxTextLength = 5000

// MaxFocusAreas bounds the number of focus-area tags on a session
const MaxFocusAreas = 10

// Session duration bounds in minutes
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 480
)

// Rating score bounds
const (
	MinRatingScore = 0
	MaxRatingScore = 100
)

// accountRegex validates developer account identifiers. Callers arrive
// pre-authenticated with a stable identifier; we only check shape.
var accountRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccount checks if a string is a well-formed developer account ID
func IsValidAccount(account string) bool {
	return accountRegex.MatchString(account)
}

// SanitizeAccount normalizes a developer account identifier
func SanitizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAccount checks if a field is a well-formed account identifier
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAccount(SanitizeAccount(value)) {
			return &ValidationError{Field: field, Message: "must be a valid account identifier"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveCents checks that an amount in cents is greater than zero
func PositiveCents(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// DurationInRange checks that an estimated duration is within platform bounds
func DurationInRange(field string, minutes int) func() *ValidationError {
	return func() *ValidationError {
		if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
			return &ValidationError{Field: field, Message: "must be between 1 and 480 minutes"}
		}
		return nil
	}
}

// AccountParamMiddleware validates the :account URL parameter on routes that
// use it. Apply to route groups that include :account params to reject
// malformed identifiers early.
func AccountParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Param("account")
		if account != "" && !IsValidAccount(SanitizeAccount(account)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_account",
				"message": "account must be 3-64 lowercase alphanumeric, dash, or underscore characters",
			})
			return
		}
		c.Next()
	}
}

// CallerMiddleware extracts the pre-authenticated caller identity from the
// X-Developer-Account header and stores it in the gin context. Identity
// issuance is handled upstream; requests without a well-formed identity on
// mutating routes are rejected by RequireCaller.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := SanitizeAccount(c.GetHeader("X-Developer-Account"))
		if account != "" && IsValidAccount(account) {
			c.Set("developerAccount", account)
		}
		c.Next()
	}
}

// RequireCaller rejects requests that did not supply a caller identity.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("developerAccount") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_identity",
				"message": "X-Developer-Account header is required",
			})
			return
		}
		c.Next()
	}
}

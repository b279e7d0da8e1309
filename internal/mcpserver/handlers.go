package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleBrowseSessions lists sessions, defaulting to joinable proposals.
func (h *Handlers) HandleBrowseSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "proposed")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListSessions(ctx, status, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sessions: %v", err)), nil
	}

	text, err := formatSessionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetSession fetches one session.
func (h *Handlers) HandleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(req.GetInt("session_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.GetSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get session: %v", err)), nil
	}

	var s sessionView
	if err := json.Unmarshal(raw, &s); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	return mcp.NewToolResultText(formatSession(&s)), nil
}

// HandleProposeSession creates a proposal and escrows the payment.
func (h *Handlers) HandleProposeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	rate := int64(req.GetInt("hourly_rate_cents", 0))
	minutes := req.GetInt("estimated_minutes", 0)
	if rate <= 0 || minutes <= 0 {
		return mcp.NewToolResultError("hourly_rate_cents and estimated_minutes must be positive"), nil
	}

	raw, err := h.client.ProposeSession(ctx, title, req.GetString("description", ""), rate, minutes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to propose session: %v", err)), nil
	}

	var s sessionView
	if err := json.Unmarshal(raw, &s); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Session %d proposed.\nEscrowed: %s (whole hours of your %d-minute estimate)\n\n%s",
		s.ID, dollars(s.FundsLockedCents), s.EstimatedMinutes, formatSession(&s))), nil
}

// HandleJoinSession joins a proposed session.
func (h *Handlers) HandleJoinSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(req.GetInt("session_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.JoinSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to join session: %v", err)), nil
	}

	var s sessionView
	if err := json.Unmarshal(raw, &s); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Joined session %d. You earn %s when both parties confirm completion.\n\n%s",
		s.ID, dollars(s.FundsLockedCents), formatSession(&s))), nil
}

// HandleConfirmSession confirms completion.
func (h *Handlers) HandleConfirmSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(req.GetInt("session_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	raw, err := h.client.ConfirmSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to confirm session: %v", err)), nil
	}

	var s sessionView
	if err := json.Unmarshal(raw, &s); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse session: %v", err)), nil
	}
	if s.Status == "completed" {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Session %d completed. %s released to %s.", s.ID, dollars(s.FundsLockedCents), s.Partner)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation recorded for session %d. Waiting for the other participant.", s.ID)), nil
}

// HandleRateSession rates the counterparty of a completed session.
func (h *Handlers) HandleRateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64(req.GetInt("session_id", 0))
	if id <= 0 {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	score := req.GetInt("score", -1)
	if score < 0 || score > 100 {
		return mcp.NewToolResultError("score must be between 0 and 100"), nil
	}

	if _, err := h.client.RateSession(ctx, id, score, req.GetString("feedback", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to rate session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rating of %d recorded for session %d.", score, id)), nil
}

// HandleCheckBalance shows the acting developer's balance.
func (h *Handlers) HandleCheckBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetBalance(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check balance: %v", err)), nil
	}

	var resp struct {
		Balance struct {
			Account        string `json:"account"`
			AvailableCents int64  `json:"availableCents"`
			TotalInCents   int64  `json:"totalInCents"`
			TotalOutCents  int64  `json:"totalOutCents"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}
	b := resp.Balance
	return mcp.NewToolResultText(fmt.Sprintf(
		"Balance for %s:\nAvailable: %s\nLifetime in: %s\nLifetime out: %s",
		b.Account, dollars(b.AvailableCents), dollars(b.TotalInCents), dollars(b.TotalOutCents))), nil
}

// HandleGetProfile shows a developer's public profile.
func (h *Handlers) HandleGetProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}

	raw, err := h.client.GetProfile(ctx, account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	var p struct {
		Account              string `json:"account"`
		SessionsCreated      int    `json:"sessionsCreated"`
		SessionsParticipated int    `json:"sessionsParticipated"`
		TotalEarnedCents     int64  `json:"totalEarnedCents"`
		AverageRating        int    `json:"averageRating"`
		RatingCount          int    `json:"ratingCount"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse profile: %v", err)), nil
	}

	rating := "no ratings yet"
	if p.RatingCount > 0 {
		rating = fmt.Sprintf("%d/100 over %d ratings", p.AverageRating, p.RatingCount)
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Profile: %s\nSessions created: %d\nSessions joined: %d\nTotal earned: %s\nRating: %s",
		p.Account, p.SessionsCreated, p.SessionsParticipated, dollars(p.TotalEarnedCents), rating)), nil
}

// sessionView mirrors the platform's session JSON.
type sessionView struct {
	ID               int64    `json:"id"`
	Creator          string   `json:"creator"`
	Partner          string   `json:"partner"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	HourlyRateCents  int64    `json:"hourlyRateCents"`
	EstimatedMinutes int      `json:"estimatedMinutes"`
	FocusAreas       []string `json:"focusAreas"`
	Status           string   `json:"status"`
	FundsLockedCents int64    `json:"fundsLockedCents"`
	CreatorConfirmed bool     `json:"creatorConfirmed"`
	PartnerConfirmed bool     `json:"partnerConfirmed"`
}

func formatSessionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Sessions []sessionView `json:"sessions"`
		Count    int           `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Sessions) == 0 {
		return "No sessions found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d sessions:\n\n", resp.Count)
	for _, s := range resp.Sessions {
		fmt.Fprintf(&sb, "#%d %s [%s]\n", s.ID, s.Title, s.Status)
		fmt.Fprintf(&sb, "  Rate: %s/hr, estimate: %d min, escrowed: %s\n",
			dollars(s.HourlyRateCents), s.EstimatedMinutes, dollars(s.FundsLockedCents))
		if len(s.FocusAreas) > 0 {
			fmt.Fprintf(&sb, "  Focus: %s\n", strings.Join(s.FocusAreas, ", "))
		}
		fmt.Fprintf(&sb, "  Creator: %s\n\n", s.Creator)
	}
	return sb.String(), nil
}

func formatSession(s *sessionView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s [%s]\n", s.ID, s.Title, s.Status)
	if s.Description != "" {
		fmt.Fprintf(&sb, "%s\n", s.Description)
	}
	fmt.Fprintf(&sb, "Creator: %s", s.Creator)
	if s.Partner != "" {
		fmt.Fprintf(&sb, ", partner: %s", s.Partner)
	}
	fmt.Fprintf(&sb, "\nRate: %s/hr, estimate: %d min, escrowed: %s\n",
		dollars(s.HourlyRateCents), s.EstimatedMinutes, dollars(s.FundsLockedCents))
	fmt.Fprintf(&sb, "Confirmed: creator=%v partner=%v", s.CreatorConfirmed, s.PartnerConfirmed)
	return sb.String()
}

func dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// Package session implements the paid collaborative session lifecycle:
// proposal with up-front escrow, partner join, dual-confirmation release,
// cancellation refunds, and the dispute/split resolution path.
package session

import (
	"context"
	"errors"
	"time"
)

// Session statuses.
const (
	StatusProposed   = "proposed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDisputed   = "disputed"
	StatusCancelled  = "cancelled"
)

// Error taxonomy. Every failure is a precondition violation, not a
// transient fault: callers resubmit with corrected inputs rather than
// retrying.
var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidStatus     = errors.New("operation not valid for current session status")
	ErrUnauthorized      = errors.New("caller is not authorized for this operation")
	ErrAlreadyJoined     = errors.New("session already has a partner")
	ErrInvalidParams     = errors.New("invalid session parameters")
	ErrInsufficientFunds = errors.New("insufficient funds for escrow")
	ErrInvalidDuration   = errors.New("estimated duration out of range")
	ErrPaymentFailed     = errors.New("payment transfer failed")
	ErrSelfJoin          = errors.New("creator cannot join own session")
	ErrSelfReview        = errors.New("cannot rate yourself")
	ErrDisputeExists     = errors.New("dispute already exists for this session")
	ErrInvalidRating     = errors.New("rating score out of range")

	// ErrExpired is part of the error taxonomy but no operation
	// currently enforces a deadline.
	ErrExpired = errors.New("session expired")
)

// Session is a paid collaboration agreement between two developers.
// FundsLockedCents is set once at creation and never mutated; it records
// the amount escrowed in custody attributable to this session.
type Session struct {
	ID               int64      `json:"id"`
	Creator          string     `json:"creator"`
	Partner          string     `json:"partner,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	HourlyRateCents  int64      `json:"hourlyRateCents"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
	FocusAreas       []string   `json:"focusAreas,omitempty"`
	Status           string     `json:"status"`
	FundsLockedCents int64      `json:"fundsLockedCents"`
	CreatorConfirmed bool       `json:"creatorConfirmed"`
	PartnerConfirmed bool       `json:"partnerConfirmed"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsParticipant reports whether account is the creator or joined partner.
func (s *Session) IsParticipant(account string) bool {
	return account == s.Creator || (s.Partner != "" && account == s.Partner)
}

// OtherParticipant returns the counterparty of account, or "" if account
// is not a participant or no partner has joined.
func (s *Session) OtherParticipant(account string) string {
	switch account {
	case s.Creator:
		return s.Partner
	case s.Partner:
		return s.Creator
	}
	return ""
}

// Dispute is the single dispute slot of a session. It is created by
// InitiateDispute, marked resolved by ResolveDispute, and never deleted
// or reused.
type Dispute struct {
	SessionID  int64      `json:"sessionId"`
	Reason     string     `json:"reason"`
	Initiator  string     `json:"initiator"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists sessions and disputes. Identifiers are monotonically
// increasing and issued by NextID before the record exists, so a failed
// escrow deposit burns the id without leaving a record behind.
type Store interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id int64) (*Session, error)
	Update(ctx context.Context, s *Session) error
	List(ctx context.Context, status string, beforeID int64, limit int) ([]*Session, error)
	ListByDeveloper(ctx context.Context, account string, beforeID int64, limit int) ([]*Session, error)
	GetDispute(ctx context.Context, sessionID int64) (*Dispute, error)
	SaveDispute(ctx context.Context, d *Dispute) error
}

// LedgerService is the value-transfer surface the session service
// consumes. Every call is atomic: it either fully applies or fails with
// no effect. Implementations map their insufficient-balance condition to
// ErrInsufficientFunds.
type LedgerService interface {
	EscrowLock(ctx context.Context, account string, amountCents int64, reference string) error
	ReleaseEscrow(ctx context.Context, account string, amountCents int64, reference string) error
	RefundEscrow(ctx context.Context, account string, amountCents int64, reference string) error
	SplitEscrow(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error
}

// ActivityRecorder receives profile-aggregation facts. Recording is
// side-band: failures are logged by the service, never surfaced to the
// caller, except for RecordRating which is the primary effect of Rate.
type ActivityRecorder interface {
	RecordCreated(ctx context.Context, account string) error
	RecordParticipated(ctx context.Context, account string) error
	RecordEarnings(ctx context.Context, account string, amountCents int64) error
	RecordRating(ctx context.Context, sessionID int64, rater, rated string, score int, feedback string) error
}

// EventPublisher pushes lifecycle events to realtime subscribers.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// Realtime event types.
const (
	EventSessionProposed  = "session_proposed"
	EventSessionJoined    = "session_joined"
	EventSessionCompleted = "session_completed"
	EventSessionCancelled = "session_cancelled"
	EventPaymentDisbursed = "payment_disbursed"
	EventDisputeOpened    = "dispute_opened"
	EventDisputeResolved  = "dispute_resolved"
)

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Obagson/code-nest/internal/logging"
	"github.com/Obagson/code-nest/internal/metrics"
	"github.com/Obagson/code-nest/internal/pagination"
	"github.com/Obagson/code-nest/internal/validation"
)

// Service drives the session escrow state machine. Each public operation
// runs under a per-session lock so that read-validate-mutate-transfer
// sequences are serialized per id.
type Service struct {
	store    Store
	ledger   LedgerService
	activity ActivityRecorder
	events   EventPublisher
	arbiters map[string]bool

	locks sync.Map // session id -> *sync.Mutex
}

// NewService creates a new session service. events may be nil.
// arbiterAccounts restricts who may resolve disputes; an empty list
// leaves resolution open to any caller.
func NewService(store Store, ledger LedgerService, activity ActivityRecorder, events EventPublisher, arbiterAccounts []string) *Service {
	arbiters := make(map[string]bool, len(arbiterAccounts))
	for _, a := range arbiterAccounts {
		arbiters[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		activity: activity,
		events:   events,
		arbiters: arbiters,
	}
}

func (s *Service) sessionLock(id int64) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) publish(eventType string, payload any) {
	if s.events != nil {
		s.events.Publish(eventType, payload)
	}
}

// eventPayload flattens a session into the fields subscribers filter on.
func eventPayload(sess *Session) map[string]any {
	p := map[string]any{
		"sessionId":        sess.ID,
		"creator":          sess.Creator,
		"title":            sess.Title,
		"status":           sess.Status,
		"fundsLockedCents": sess.FundsLockedCents,
	}
	if sess.Partner != "" {
		p["partner"] = sess.Partner
	}
	return p
}

func (s *Service) recordActivity(ctx context.Context, what string, fn func() error) {
	if err := fn(); err != nil {
		logging.L(ctx).Warn("activity recording failed", "activity", what, "error", err)
	}
}

func escrowReference(id int64) string {
	return fmt.Sprintf("session:%d", id)
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Title            string
	Description      string
	HourlyRateCents  int64
	EstimatedMinutes int
	FocusAreas       []string
}

// Create proposes a new session and escrows the full payment up front.
// The escrow amount is the hourly rate times the number of whole hours
// in the estimate: a 90-minute estimate escrows one hour, and estimates
// under an hour escrow nothing.
func (s *Service) Create(ctx context.Context, creator string, params CreateParams) (*Session, error) {
	creator = normalize(creator)
	title := validation.SanitizeString(params.Title, validation.MaxTitleLength)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidParams)
	}
	if params.HourlyRateCents <= 0 {
		return nil, fmt.Errorf("%w: hourly rate must be greater than zero", ErrInvalidParams)
	}
	if params.EstimatedMinutes < validation.MinDurationMinutes || params.EstimatedMinutes > validation.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, params.EstimatedMinutes)
	}
	if len(params.FocusAreas) > validation.MaxFocusAreas {
		return nil, fmt.Errorf("%w: too many focus areas", ErrInvalidParams)
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate session id: %w", err)
	}

	// Whole hours only: sub-hour remainders are not billed
	escrow := params.HourlyRateCents * int64(params.EstimatedMinutes/60)
	if escrow > 0 {
		if err := s.ledger.EscrowLock(ctx, creator, escrow, escrowReference(id)); err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
	}

	now := time.Now()
	sess := &Session{
		ID:               id,
		Creator:          creator,
		Title:            title,
		Description:      validation.SanitizeString(params.Description, validation.MaxTextLength),
		HourlyRateCents:  params.HourlyRateCents,
		EstimatedMinutes: params.EstimatedMinutes,
		FocusAreas:       params.FocusAreas,
		Status:           StatusProposed,
		FundsLockedCents: escrow,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		// Escrow is already held; put it back before reporting failure
		if escrow > 0 {
			if rerr := s.ledger.RefundEscrow(ctx, creator, escrow, escrowReference(id)); rerr != nil {
				logging.L(ctx).Error("escrow refund after failed create", "session_id", id, "error", rerr)
			}
		}
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.recordActivity(ctx, "created", func() error {
		return s.activity.RecordCreated(ctx, creator)
	})
	metrics.SessionsTotal.WithLabelValues(StatusProposed).Inc()
	s.publish(EventSessionProposed, eventPayload(sess))
	logging.L(ctx).Info("session proposed",
		"session_id", id, "creator", creator, "escrow_cents", escrow)
	return sess, nil
}

// Join sets the caller as the session's partner and starts the session.
func (s *Service) Join(ctx context.Context, id int64, caller string) (*Session, error) {
	caller = normalize(caller)
	mu := s.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusProposed {
		return nil, fmt.Errorf("%w: cannot join a %s session", ErrInvalidStatus, sess.Status)
	}
	if sess.Partner != "" {
		return nil, ErrAlreadyJoined
	}
	if caller == sess.Creator {
		return nil, ErrSelfJoin
	}

	now := time.Now()
	sess.Partner = caller
	sess.Status = StatusInProgress
	sess.StartedAt = &now
	sess.UpdatedAt = now
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.recordActivity(ctx, "participated", func() error {
		return s.activity.RecordParticipated(ctx, caller)
	})
	metrics.SessionsTotal.WithLabelValues(StatusInProgress).Inc()
	s.publish(EventSessionJoined, eventPayload(sess))
	logging.L(ctx).Info("session joined", "session_id", id, "partner", caller)
	return sess, nil
}

// ConfirmCompletion records the caller's completion confirmation. When
// both participants have confirmed, finalization runs in the same call:
// the full escrowed amount is released to the partner and the session
// becomes Completed. If the release transfer fails nothing is persisted.
func (s *Service) ConfirmCompletion(ctx context.Context, id int64, caller string) (*Session, error) {
	caller = normalize(caller)
	mu := s.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: cannot confirm a %s session", ErrInvalidStatus, sess.Status)
	}
	if !sess.IsParticipant(caller) {
		return nil, ErrUnauthorized
	}

	switch caller {
	case sess.Creator:
		sess.CreatorConfirmed = true
	case sess.Partner:
		sess.PartnerConfirmed = true
	}
	sess.UpdatedAt = time.Now()

	if sess.CreatorConfirmed && sess.PartnerConfirmed {
		// Release before persisting so a failed transfer leaves the
		// session InProgress with escrow intact
		if sess.FundsLockedCents > 0 {
			if err := s.ledger.ReleaseEscrow(ctx, sess.Partner, sess.FundsLockedCents, escrowReference(id)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
			}
		}
		now := time.Now()
		sess.Status = StatusCompleted
		sess.CompletedAt = &now
		if err := s.store.Update(ctx, sess); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}

		s.recordActivity(ctx, "earned", func() error {
			return s.activity.RecordEarnings(ctx, sess.Partner, sess.FundsLockedCents)
		})
		metrics.SessionsTotal.WithLabelValues(StatusCompleted).Inc()
		s.publish(EventSessionCompleted, eventPayload(sess))
		s.publish(EventPaymentDisbursed, map[string]any{
			"sessionId":   id,
			"recipient":   sess.Partner,
			"amountCents": sess.FundsLockedCents,
		})
		logging.L(ctx).Info("session completed",
			"session_id", id, "released_cents", sess.FundsLockedCents, "partner", sess.Partner)
		return sess, nil
	}

	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	logging.L(ctx).Info("completion confirmed", "session_id", id, "by", caller)
	return sess, nil
}

// Cancel withdraws an unjoined proposal and refunds the escrow to the
// creator. The creator's sessions-created counter is not rolled back.
func (s *Service) Cancel(ctx context.Context, id int64, caller string) (*Session, error) {
	caller = normalize(caller)
	mu := s.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusProposed {
		return nil, fmt.Errorf("%w: cannot cancel a %s session", ErrInvalidStatus, sess.Status)
	}
	if caller != sess.Creator {
		return nil, ErrUnauthorized
	}
	if sess.Partner != "" {
		return nil, ErrAlreadyJoined
	}

	if sess.FundsLockedCents > 0 {
		if err := s.ledger.RefundEscrow(ctx, sess.Creator, sess.FundsLockedCents, escrowReference(id)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}
	sess.Status = StatusCancelled
	sess.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues(StatusCancelled).Inc()
	s.publish(EventSessionCancelled, eventPayload(sess))
	logging.L(ctx).Info("session cancelled",
		"session_id", id, "refunded_cents", sess.FundsLockedCents)
	return sess, nil
}

// InitiateDispute opens the session's single dispute slot and forces the
// status to Disputed. A Completed session can be disputed even after its
// escrow has been fully disbursed; resolution will then draw against the
// custody pool rather than this session's own locked funds.
func (s *Service) InitiateDispute(ctx context.Context, id int64, caller, reason string) (*Dispute, error) {
	caller = normalize(caller)
	reason = validation.SanitizeString(reason, validation.MaxTextLength)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidParams)
	}

	mu := s.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusInProgress && sess.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: cannot dispute a %s session", ErrInvalidStatus, sess.Status)
	}
	if !sess.IsParticipant(caller) {
		return nil, ErrUnauthorized
	}

	// One dispute slot per session, never reusable
	if _, err := s.store.GetDispute(ctx, id); err == nil {
		return nil, ErrDisputeExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	dispute := &Dispute{
		SessionID: id,
		Reason:    reason,
		Initiator: caller,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDispute(ctx, dispute); err != nil {
		return nil, fmt.Errorf("save dispute: %w", err)
	}
	sess.Status = StatusDisputed
	sess.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues(StatusDisputed).Inc()
	metrics.DisputesTotal.WithLabelValues("opened").Inc()
	s.publish(EventDisputeOpened, map[string]any{
		"sessionId": id,
		"initiator": caller,
		"reason":    reason,
	})
	logging.L(ctx).Info("dispute opened", "session_id", id, "initiator", caller)
	return dispute, nil
}

// ResolveDispute splits the session's locked funds between creator and
// partner according to the given percentages, which must sum to exactly
// 100. Both shares use floor division, so they can sum to less than the
// locked amount; the remainder stays in custody.
//
// When an arbiter allowlist is configured only listed accounts may
// resolve; with no allowlist any caller may.
func (s *Service) ResolveDispute(ctx context.Context, id int64, caller string, creatorPct, partnerPct int) (*Session, error) {
	caller = normalize(caller)
	if len(s.arbiters) > 0 && !s.arbiters[caller] {
		return nil, ErrUnauthorized
	}
	if creatorPct < 0 || partnerPct < 0 || creatorPct+partnerPct != 100 {
		return nil, fmt.Errorf("%w: percentages must be non-negative and sum to 100", ErrInvalidParams)
	}

	mu := s.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusDisputed {
		return nil, fmt.Errorf("%w: session is %s, not disputed", ErrInvalidStatus, sess.Status)
	}
	dispute, err := s.store.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}

	creatorPay := sess.FundsLockedCents * int64(creatorPct) / 100
	partnerPay := sess.FundsLockedCents * int64(partnerPct) / 100
	if creatorPay+partnerPay > 0 {
		if err := s.ledger.SplitEscrow(ctx, sess.Creator, sess.Partner, creatorPay, partnerPay, escrowReference(id)); err != nil {
			if errors.Is(err, ErrInsufficientFunds) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}
	if dust := sess.FundsLockedCents - creatorPay - partnerPay; dust > 0 {
		metrics.EscrowDustCents.Add(float64(dust))
	}

	now := time.Now()
	sess.Status = StatusCompleted
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	dispute.Resolved = true
	dispute.ResolvedAt = &now
	if err := s.store.SaveDispute(ctx, dispute); err != nil {
		return nil, fmt.Errorf("save dispute: %w", err)
	}

	if partnerPay > 0 {
		s.recordActivity(ctx, "earned", func() error {
			return s.activity.RecordEarnings(ctx, sess.Partner, partnerPay)
		})
	}
	metrics.DisputesTotal.WithLabelValues("resolved").Inc()
	s.publish(EventDisputeResolved, map[string]any{
		"sessionId":         id,
		"creatorPayCents":   creatorPay,
		"partnerPayCents":   partnerPay,
		"creatorPercentage": creatorPct,
		"partnerPercentage": partnerPct,
	})
	s.publish(EventPaymentDisbursed, map[string]any{
		"sessionId":   id,
		"recipient":   sess.Partner,
		"amountCents": partnerPay,
	})
	logging.L(ctx).Info("dispute resolved",
		"session_id", id, "creator_pay_cents", creatorPay, "partner_pay_cents", partnerPay)
	return sess, nil
}

// Rate records a set-once review of the counterparty of a completed
// session. rated may be empty, in which case it defaults to the caller's
// counterparty.
func (s *Service) Rate(ctx context.Context, id int64, rater, rated string, score int, feedback string) error {
	rater = normalize(rater)
	rated = normalize(rated)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status != StatusCompleted {
		return fmt.Errorf("%w: cannot rate a %s session", ErrInvalidStatus, sess.Status)
	}
	if !sess.IsParticipant(rater) {
		return ErrUnauthorized
	}
	if rated == "" {
		rated = sess.OtherParticipant(rater)
	}
	if rated == rater {
		return ErrSelfReview
	}
	if rated != sess.OtherParticipant(rater) {
		return fmt.Errorf("%w: rated account is not a participant", ErrUnauthorized)
	}
	if score < validation.MinRatingScore || score > validation.MaxRatingScore {
		return fmt.Errorf("%w: %d", ErrInvalidRating, score)
	}

	feedback = validation.SanitizeString(feedback, validation.MaxTextLength)
	if err := s.activity.RecordRating(ctx, id, rater, rated, score, feedback); err != nil {
		return fmt.Errorf("record rating: %w", err)
	}
	logging.L(ctx).Info("session rated", "session_id", id, "rater", rater, "rated", rated, "score", score)
	return nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id int64) (*Session, error) {
	return s.store.Get(ctx, id)
}

// GetDispute returns the dispute for a session, if any.
func (s *Service) GetDispute(ctx context.Context, id int64) (*Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

// List returns a page of sessions, optionally filtered by status, newest
// first. The returned cursor is empty on the last page.
func (s *Service) List(ctx context.Context, status, cursor string, limit int) ([]*Session, string, error) {
	if limit <= 0 {
		limit = 50
	}
	beforeID, err := decodeSessionCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	sessions, err := s.store.List(ctx, status, beforeID, limit+1)
	if err != nil {
		return nil, "", err
	}
	sessions, next := pagination.Page(sessions, limit, sessionCursorKey)
	return sessions, next, nil
}

// ListByDeveloper returns a page of sessions where the account is a
// participant, newest first.
func (s *Service) ListByDeveloper(ctx context.Context, account, cursor string, limit int) ([]*Session, string, error) {
	if limit <= 0 {
		limit = 50
	}
	beforeID, err := decodeSessionCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	sessions, err := s.store.ListByDeveloper(ctx, normalize(account), beforeID, limit+1)
	if err != nil {
		return nil, "", err
	}
	sessions, next := pagination.Page(sessions, limit, sessionCursorKey)
	return sessions, next, nil
}

func sessionCursorKey(sess *Session) (time.Time, string) {
	return sess.CreatedAt, strconv.FormatInt(sess.ID, 10)
}

func decodeSessionCursor(cursor string) (int64, error) {
	c, err := pagination.Decode(cursor)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, nil
	}
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad session id", pagination.ErrInvalidCursor)
	}
	return id, nil
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// Package profile aggregates per-developer activity statistics and ratings.
//
// Profiles are created lazily: the first recorded activity for an account
// upserts a zero-valued profile before merging the update. The one
// exception is rating contributions: rating an account that has no
// profile yet writes nothing, neither a profile nor a rating slot.
package profile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Obagson/code-nest/internal/metrics"
)

var ErrProfileNotFound = errors.New("developer profile not found")

// Profile holds a developer's aggregate platform statistics.
type Profile struct {
	Account              string    `json:"account"`
	SessionsCreated      int       `json:"sessionsCreated"`
	SessionsParticipated int       `json:"sessionsParticipated"`
	TotalEarnedCents     int64     `json:"totalEarnedCents"`
	AverageRating        int       `json:"averageRating"` // 0-100, floor of the running mean
	RatingCount          int       `json:"ratingCount"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Rating is a set-once review slot keyed by (session, rater).
type Rating struct {
	SessionID int64     `json:"sessionId"`
	Rater     string    `json:"rater"`
	Rated     string    `json:"rated"`
	Score     int       `json:"score"` // 0-100
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists profiles and rating slots.
type Store interface {
	Get(ctx context.Context, account string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	// InsertRating stores a rating slot. Returns false without error when
	// the (session, rater) slot is already taken: the first write wins.
	InsertRating(ctx context.Context, r *Rating) (bool, error)
	ListRatingsFor(ctx context.Context, rated string, limit int) ([]*Rating, error)
}

// Service provides profile aggregation operations.
type Service struct {
	store Store
	locks sync.Map // per-account locks for read-modify-write updates
}

// NewService creates a new profile service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) accountLock(account string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(account, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// RecordCreated increments the sessions-created counter.
func (s *Service) RecordCreated(ctx context.Context, account string) error {
	return s.update(ctx, account, func(p *Profile) {
		p.SessionsCreated++
	})
}

// RecordParticipated increments the sessions-participated counter.
func (s *Service) RecordParticipated(ctx context.Context, account string) error {
	return s.update(ctx, account, func(p *Profile) {
		p.SessionsParticipated++
	})
}

// RecordEarnings adds disbursed session value to cumulative earnings.
func (s *Service) RecordEarnings(ctx context.Context, account string, amountCents int64) error {
	return s.update(ctx, account, func(p *Profile) {
		p.TotalEarnedCents += amountCents
	})
}

// update applies fn to the account's profile, creating a zero profile first
// if none exists (idempotent upsert).
func (s *Service) update(ctx context.Context, account string, fn func(*Profile)) error {
	account = normalize(account)
	mu := s.accountLock(account)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.store.Get(ctx, account)
	if errors.Is(err, ErrProfileNotFound) {
		p = &Profile{Account: account}
	} else if err != nil {
		return err
	}

	fn(p)
	p.UpdatedAt = time.Now()
	return s.store.Save(ctx, p)
}

// RecordRating stores a rating slot and folds the score into the rated
// developer's running average.
//
// Two quiet outcomes are intentional: a second rating for the same
// (session, rater) pair leaves everything untouched (the slot is
// set-once), and rating an account with no profile yet writes nothing at
// all, leaving the slot open for a retry once the profile exists.
func (s *Service) RecordRating(ctx context.Context, sessionID int64, rater, rated string, score int, feedback string) error {
	rater = normalize(rater)
	rated = normalize(rated)

	mu := s.accountLock(rated)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.store.Get(ctx, rated)
	if errors.Is(err, ErrProfileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	inserted, err := s.store.InsertRating(ctx, &Rating{
		SessionID: sessionID,
		Rater:     rater,
		Rated:     rated,
		Score:     score,
		Feedback:  feedback,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	// Integer running mean, truncated toward zero
	p.AverageRating = (p.AverageRating*p.RatingCount + score) / (p.RatingCount + 1)
	p.RatingCount++
	p.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, p); err != nil {
		return err
	}

	metrics.RatingsRecordedTotal.Inc()
	return nil
}

// GetProfile returns a developer's profile.
func (s *Service) GetProfile(ctx context.Context, account string) (*Profile, error) {
	return s.store.Get(ctx, normalize(account))
}

// ListRatings returns ratings received by a developer, newest first.
func (s *Service) ListRatings(ctx context.Context, account string, limit int) ([]*Rating, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListRatingsFor(ctx, normalize(account), limit)
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

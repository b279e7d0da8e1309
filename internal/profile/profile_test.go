package profile

import (
	"context"
	"errors"
	"testing"
)

func TestActivityCreatesProfileLazily(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "alice"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("Expected ErrProfileNotFound before activity, got %v", err)
	}

	if err := s.RecordCreated(ctx, "Alice"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}

	p, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if p.SessionsCreated != 1 {
		t.Errorf("Expected 1 session created, got %d", p.SessionsCreated)
	}
	if p.Account != "alice" {
		t.Errorf("Expected lowercase account, got %q", p.Account)
	}
}

func TestCountersAccumulate(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordCreated(ctx, "alice"); err != nil {
			t.Fatalf("RecordCreated failed: %v", err)
		}
	}
	if err := s.RecordParticipated(ctx, "alice"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}
	if err := s.RecordEarnings(ctx, "alice", 2500); err != nil {
		t.Fatalf("RecordEarnings failed: %v", err)
	}
	if err := s.RecordEarnings(ctx, "alice", 1500); err != nil {
		t.Fatalf("RecordEarnings failed: %v", err)
	}

	p, _ := s.GetProfile(ctx, "alice")
	if p.SessionsCreated != 3 {
		t.Errorf("Expected 3 created, got %d", p.SessionsCreated)
	}
	if p.SessionsParticipated != 1 {
		t.Errorf("Expected 1 participated, got %d", p.SessionsParticipated)
	}
	if p.TotalEarnedCents != 4000 {
		t.Errorf("Expected 4000 earned, got %d", p.TotalEarnedCents)
	}
}

func TestRatingRunningAverageTruncates(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.RecordParticipated(ctx, "bob"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}

	scores := []int{90, 75, 80}
	for i, score := range scores {
		if err := s.RecordRating(ctx, int64(i+1), "alice", "bob", score, ""); err != nil {
			t.Fatalf("RecordRating failed: %v", err)
		}
	}

	p, _ := s.GetProfile(ctx, "bob")
	if p.RatingCount != 3 {
		t.Errorf("Expected 3 ratings, got %d", p.RatingCount)
	}
	// (90 -> 90), (90+75)/2 = 82, (82*2+80)/3 = 81
	if p.AverageRating != 81 {
		t.Errorf("Expected average 81, got %d", p.AverageRating)
	}
}

func TestRatingSlotIsSetOnce(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.RecordParticipated(ctx, "bob"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}
	if err := s.RecordRating(ctx, 1, "alice", "bob", 80, "great pairing"); err != nil {
		t.Fatalf("RecordRating failed: %v", err)
	}
	// Second write to the same slot is a silent no-op
	if err := s.RecordRating(ctx, 1, "alice", "bob", 10, "changed my mind"); err != nil {
		t.Fatalf("Duplicate RecordRating should not error: %v", err)
	}

	p, _ := s.GetProfile(ctx, "bob")
	if p.RatingCount != 1 {
		t.Errorf("Expected 1 rating, got %d", p.RatingCount)
	}
	if p.AverageRating != 80 {
		t.Errorf("Expected average 80, got %d", p.AverageRating)
	}

	ratings, err := s.ListRatings(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("ListRatings failed: %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("Expected 1 rating, got %d", len(ratings))
	}
	if ratings[0].Score != 80 || ratings[0].Feedback != "great pairing" {
		t.Errorf("First write should win, got score=%d feedback=%q", ratings[0].Score, ratings[0].Feedback)
	}
}

func TestRatingSkipsAccountWithoutProfile(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	// "ghost" has no recorded activity: nothing is written, not even
	// the rating slot
	if err := s.RecordRating(ctx, 1, "alice", "ghost", 95, ""); err != nil {
		t.Fatalf("RecordRating failed: %v", err)
	}

	if _, err := s.GetProfile(ctx, "ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound for unrated-profile account, got %v", err)
	}

	ratings, _ := s.ListRatings(ctx, "ghost", 10)
	if len(ratings) != 0 {
		t.Errorf("Expected no stored ratings for profile-less account, got %d", len(ratings))
	}

	// The slot stays open: once the account has a profile, the same
	// (session, rater) pair can rate again
	if err := s.RecordParticipated(ctx, "ghost"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}
	if err := s.RecordRating(ctx, 1, "alice", "ghost", 95, ""); err != nil {
		t.Fatalf("RecordRating retry failed: %v", err)
	}

	ratings, _ = s.ListRatings(ctx, "ghost", 10)
	if len(ratings) != 1 {
		t.Fatalf("Expected 1 stored rating after profile exists, got %d", len(ratings))
	}
	p, err := s.GetProfile(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if p.AverageRating != 95 || p.RatingCount != 1 {
		t.Errorf("Average = %d count = %d, want 95 and 1", p.AverageRating, p.RatingCount)
	}
}

func TestRatersCanRateEachPartyOfSameSession(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.RecordCreated(ctx, "alice"); err != nil {
		t.Fatalf("RecordCreated failed: %v", err)
	}
	if err := s.RecordParticipated(ctx, "bob"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}

	if err := s.RecordRating(ctx, 1, "alice", "bob", 70, ""); err != nil {
		t.Fatalf("RecordRating failed: %v", err)
	}
	if err := s.RecordRating(ctx, 1, "bob", "alice", 60, ""); err != nil {
		t.Fatalf("RecordRating failed: %v", err)
	}

	a, _ := s.GetProfile(ctx, "alice")
	b, _ := s.GetProfile(ctx, "bob")
	if a.AverageRating != 60 || a.RatingCount != 1 {
		t.Errorf("alice: expected avg 60 count 1, got avg %d count %d", a.AverageRating, a.RatingCount)
	}
	if b.AverageRating != 70 || b.RatingCount != 1 {
		t.Errorf("bob: expected avg 70 count 1, got avg %d count %d", b.AverageRating, b.RatingCount)
	}
}

func TestListRatingsNewestFirst(t *testing.T) {
	s := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := s.RecordParticipated(ctx, "bob"); err != nil {
		t.Fatalf("RecordParticipated failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.RecordRating(ctx, int64(i), "alice", "bob", 50+i, ""); err != nil {
			t.Fatalf("RecordRating failed: %v", err)
		}
	}

	ratings, err := s.ListRatings(ctx, "bob", 2)
	if err != nil {
		t.Fatalf("ListRatings failed: %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("Expected 2 ratings with limit, got %d", len(ratings))
	}
	if ratings[0].SessionID != 3 || ratings[1].SessionID != 2 {
		t.Errorf("Expected newest first, got sessions %d, %d", ratings[0].SessionID, ratings[1].SessionID)
	}
}

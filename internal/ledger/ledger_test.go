package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Obagson/code-nest/internal/pagination"
)

func TestDepositAndBalance(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if err := l.Deposit(ctx, "Alice", 5000, "dep_1"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	// Account names are normalized to lowercase
	bal, err := l.GetBalance(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.AvailableCents != 5000 {
		t.Errorf("Expected 5000 available, got %d", bal.AvailableCents)
	}
	if bal.TotalInCents != 5000 {
		t.Errorf("Expected 5000 total in, got %d", bal.TotalInCents)
	}
}

func TestDepositRejectsNonPositive(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	for _, amount := range []int64{0, -100} {
		if err := l.Deposit(ctx, "alice", amount, "dep"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Deposit(%d): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestEscrowLockMovesFundsToCustody(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 1000, "dep_1"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := l.EscrowLock(ctx, "alice", 600, "session:1"); err != nil {
		t.Fatalf("EscrowLock failed: %v", err)
	}

	bal, _ := l.GetBalance(ctx, "alice")
	if bal.AvailableCents != 400 {
		t.Errorf("Expected 400 available after lock, got %d", bal.AvailableCents)
	}

	custody, err := l.CustodyBalance(ctx)
	if err != nil {
		t.Fatalf("CustodyBalance failed: %v", err)
	}
	if custody != 600 {
		t.Errorf("Expected 600 in custody, got %d", custody)
	}
}

func TestEscrowLockInsufficientFunds(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	if err := l.Deposit(ctx, "alice", 500, "dep_1"); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := l.EscrowLock(ctx, "alice", 600, "session:1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing moved
	bal, _ := l.GetBalance(ctx, "alice")
	if bal.AvailableCents != 500 {
		t.Errorf("Expected balance untouched at 500, got %d", bal.AvailableCents)
	}
	custody, _ := l.CustodyBalance(ctx)
	if custody != 0 {
		t.Errorf("Expected empty custody, got %d", custody)
	}
}

func TestReleaseEscrowCreditsRecipient(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 1000, "dep_1")
	_ = l.EscrowLock(ctx, "alice", 600, "session:1")

	if err := l.ReleaseEscrow(ctx, "bob", 600, "session:1"); err != nil {
		t.Fatalf("ReleaseEscrow failed: %v", err)
	}

	bob, _ := l.GetBalance(ctx, "bob")
	if bob.AvailableCents != 600 {
		t.Errorf("Expected bob to receive 600, got %d", bob.AvailableCents)
	}
	custody, _ := l.CustodyBalance(ctx)
	if custody != 0 {
		t.Errorf("Expected custody drained, got %d", custody)
	}
}

func TestReleaseBeyondCustodyFails(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 1000, "dep_1")
	_ = l.EscrowLock(ctx, "alice", 300, "session:1")

	if err := l.ReleaseEscrow(ctx, "bob", 600, "session:1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	bob, _ := l.GetBalance(ctx, "bob")
	if bob.AvailableCents != 0 {
		t.Errorf("Expected bob untouched, got %d", bob.AvailableCents)
	}
}

func TestSplitEscrowLeavesDustInCustody(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 1000, "dep_1")
	_ = l.EscrowLock(ctx, "alice", 10, "session:1")

	// 33/67 split of 10 cents: 3 + 6, one cent of dust stays behind
	if err := l.SplitEscrow(ctx, "alice", "bob", 3, 6, "session:1"); err != nil {
		t.Fatalf("SplitEscrow failed: %v", err)
	}

	alice, _ := l.GetBalance(ctx, "alice")
	bob, _ := l.GetBalance(ctx, "bob")
	custody, _ := l.CustodyBalance(ctx)

	if alice.AvailableCents != 990+3 {
		t.Errorf("Expected alice at 993, got %d", alice.AvailableCents)
	}
	if bob.AvailableCents != 6 {
		t.Errorf("Expected bob at 6, got %d", bob.AvailableCents)
	}
	if custody != 1 {
		t.Errorf("Expected 1 cent of dust in custody, got %d", custody)
	}
}

func TestSplitSkipsZeroLeg(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 100, "dep_1")
	_ = l.EscrowLock(ctx, "alice", 100, "session:1")

	// 0/100 split: creator leg skipped entirely
	if err := l.SplitEscrow(ctx, "alice", "bob", 0, 100, "session:1"); err != nil {
		t.Fatalf("SplitEscrow failed: %v", err)
	}

	history, _, _ := l.GetHistory(ctx, "alice", "", 50)
	for _, e := range history {
		if e.Type == EntryEscrowSplit {
			t.Error("Expected no split entry for the zero leg")
		}
	}
}

func TestGetHistoryNewestFirst(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 100, "dep_1")
	_ = l.Deposit(ctx, "alice", 200, "dep_2")

	history, _, err := l.GetHistory(ctx, "alice", "", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(history))
	}
	if history[0].Reference != "dep_2" {
		t.Errorf("Expected newest entry first, got %s", history[0].Reference)
	}
}

func TestConservationAcrossOperations(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 10000, "dep_1")
	_ = l.Deposit(ctx, "bob", 5000, "dep_2")

	_ = l.EscrowLock(ctx, "alice", 1200, "session:1")
	_ = l.EscrowLock(ctx, "bob", 700, "session:2")
	_ = l.ReleaseEscrow(ctx, "bob", 1200, "session:1")
	_ = l.RefundEscrow(ctx, "bob", 700, "session:2")

	alice, _ := l.GetBalance(ctx, "alice")
	bob, _ := l.GetBalance(ctx, "bob")
	custody, _ := l.CustodyBalance(ctx)

	total := alice.AvailableCents + bob.AvailableCents + custody
	if total != 15000 {
		t.Errorf("Value not conserved: %d available + custody, want 15000", total)
	}
}

func TestGetHistoryPaging(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := l.Deposit(ctx, "alice", int64(i*100), fmt.Sprintf("dep_%d", i)); err != nil {
			t.Fatalf("Deposit failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	first, next, err := l.GetHistory(ctx, "alice", "", 2)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("Expected first page of 2, got %d", len(first))
	}
	if first[0].Reference != "dep_3" || first[1].Reference != "dep_2" {
		t.Errorf("Expected newest first, got %s, %s", first[0].Reference, first[1].Reference)
	}
	if next == "" {
		t.Fatal("Expected a cursor for the remaining page")
	}

	second, next, err := l.GetHistory(ctx, "alice", next, 2)
	if err != nil {
		t.Fatalf("GetHistory with cursor failed: %v", err)
	}
	if len(second) != 1 || second[0].Reference != "dep_1" {
		t.Fatalf("Expected final page with dep_1, got %+v", second)
	}
	if next != "" {
		t.Errorf("Expected no cursor past the last page, got %q", next)
	}
}

func TestGetHistoryRejectsMalformedCursor(t *testing.T) {
	l := New(NewMemoryStore())

	_, _, err := l.GetHistory(context.Background(), "alice", "not a cursor", 10)
	if !errors.Is(err, pagination.ErrInvalidCursor) {
		t.Errorf("Expected ErrInvalidCursor, got %v", err)
	}
}

func TestTotalsTrackConservation(t *testing.T) {
	l := New(NewMemoryStore())
	ctx := context.Background()

	_ = l.Deposit(ctx, "alice", 10000, "dep_1")
	_ = l.EscrowLock(ctx, "alice", 1200, "session:1")
	_ = l.SplitEscrow(ctx, "alice", "bob", 400, 799, "session:1")

	totals, err := l.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.DepositCents != 10000 {
		t.Errorf("Expected 10000 deposited, got %d", totals.DepositCents)
	}
	if totals.AvailableCents+totals.CustodyCents != totals.DepositCents {
		t.Errorf("Deposits not conserved: %d available + %d custody != %d",
			totals.AvailableCents, totals.CustodyCents, totals.DepositCents)
	}
	if totals.EntryNetCents != totals.AvailableCents {
		t.Errorf("Journal does not fold to balances: net %d, available %d",
			totals.EntryNetCents, totals.AvailableCents)
	}
	// One cent of the 1200 lock is unassigned after the 400/799 split
	if totals.CustodyCents != 1 {
		t.Errorf("Expected 1 cent of dust in custody, got %d", totals.CustodyCents)
	}
}

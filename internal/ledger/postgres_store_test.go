package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Obagson/code-nest/internal/idgen"
	"github.com/Obagson/code-nest/internal/ledger"
	"github.com/Obagson/code-nest/internal/testutil"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := testutil.PostgresDB(t)
	l := ledger.New(ledger.NewPostgresStore(db))
	ctx := context.Background()

	// Unique accounts per run keep this safe against a shared database
	creator := idgen.WithPrefix("itc-")
	partner := idgen.WithPrefix("itp-")
	ref := idgen.WithPrefix("session-")

	custodyBefore, err := l.CustodyBalance(ctx)
	if err != nil {
		t.Fatalf("CustodyBalance failed: %v", err)
	}

	if err := l.Deposit(ctx, creator, 5000, idgen.WithPrefix("dep_")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if err := l.EscrowLock(ctx, creator, 3000, ref); err != nil {
		t.Fatalf("EscrowLock failed: %v", err)
	}

	bal, err := l.GetBalance(ctx, creator)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.AvailableCents != 2000 {
		t.Errorf("Expected 2000 available, got %d", bal.AvailableCents)
	}

	custody, _ := l.CustodyBalance(ctx)
	if custody-custodyBefore != 3000 {
		t.Errorf("Expected custody to grow by 3000, grew by %d", custody-custodyBefore)
	}

	// Over-locking fails without touching the balance
	if err := l.EscrowLock(ctx, creator, 9999, ref); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	bal, _ = l.GetBalance(ctx, creator)
	if bal.AvailableCents != 2000 {
		t.Errorf("Failed lock changed the balance: %d", bal.AvailableCents)
	}

	// Split pays both parties out of custody
	if err := l.SplitEscrow(ctx, creator, partner, 1000, 1999, ref); err != nil {
		t.Fatalf("SplitEscrow failed: %v", err)
	}
	creatorBal, _ := l.GetBalance(ctx, creator)
	partnerBal, _ := l.GetBalance(ctx, partner)
	if creatorBal.AvailableCents != 3000 {
		t.Errorf("Expected creator at 3000, got %d", creatorBal.AvailableCents)
	}
	if partnerBal.AvailableCents != 1999 {
		t.Errorf("Expected partner at 1999, got %d", partnerBal.AvailableCents)
	}

	// One cent of the lock stays in custody
	custody, _ = l.CustodyBalance(ctx)
	if custody-custodyBefore != 1 {
		t.Errorf("Expected 1 cent left of this lock, got %d", custody-custodyBefore)
	}

	entries, _, err := l.GetHistory(ctx, creator, "", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) < 3 {
		t.Errorf("Expected deposit, lock, and split entries, got %d", len(entries))
	}
}

func TestPostgresStoreUnknownAccountIsZero(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	db := testutil.PostgresDB(t)
	l := ledger.New(ledger.NewPostgresStore(db))

	bal, err := l.GetBalance(context.Background(), idgen.WithPrefix("ghost-"))
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.AvailableCents != 0 || bal.TotalInCents != 0 {
		t.Errorf("Unknown account should report zero, got %+v", bal)
	}
}

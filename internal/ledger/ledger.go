// Package ledger tracks developer balances and escrow custody on the platform.
//
// Flow:
//  1. Developer tops up their balance (billing webhook or demo deposit)
//  2. Proposing a session locks the escrow amount: available → custody
//  3. Completion releases custody to the partner's available balance
//  4. Cancellation refunds custody to the creator
//  5. Dispute resolution splits custody between both participants
//
// Custody is a single pooled balance owned by the platform. Every transfer
// is atomic per call: it either fully applies or leaves both sides untouched.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Obagson/code-nest/internal/metrics"
	"github.com/Obagson/code-nest/internal/pagination"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Entry types recorded in account history.
const (
	EntryDeposit       = "deposit"
	EntryEscrowLock    = "escrow_lock"
	EntryEscrowRelease = "escrow_release"
	EntryEscrowRefund  = "escrow_refund"
	EntryEscrowSplit   = "escrow_split"
)

// Entry represents a ledger entry
type Entry struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amountCents"` // negative for debits
	Reference   string    `json:"reference,omitempty"` // session id, top-up id, etc.
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance represents a developer's balance
type Balance struct {
	Account        string    `json:"account"`
	AvailableCents int64     `json:"availableCents"`
	TotalInCents   int64     `json:"totalInCents"`  // Lifetime credits
	TotalOutCents  int64     `json:"totalOutCents"` // Lifetime debits
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AuditTotals aggregates every balance and journal entry in the book.
// Conservation holds when DepositCents == AvailableCents + CustodyCents
// and the journal folds to the balances (EntryNetCents == AvailableCents).
type AuditTotals struct {
	AvailableCents int64 `json:"availableCents"` // sum of all account balances
	CustodyCents   int64 `json:"custodyCents"`
	DepositCents   int64 `json:"depositCents"`  // sum of deposit entries
	EntryNetCents  int64 `json:"entryNetCents"` // net of all journal entries
}

// Store persists ledger data. Implementations must apply each call
// atomically; a failed call leaves every balance unchanged.
type Store interface {
	GetBalance(ctx context.Context, account string) (*Balance, error)
	Credit(ctx context.Context, account string, amountCents int64, reference, description string) error
	Lock(ctx context.Context, account string, amountCents int64, reference string) error
	Release(ctx context.Context, account string, amountCents int64, reference, entryType string) error
	Split(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error
	CustodyBalance(ctx context.Context) (int64, error)
	GetHistory(ctx context.Context, account string, before *pagination.Cursor, limit int) ([]*Entry, error)
	Totals(ctx context.Context) (*AuditTotals, error)
}

// Ledger manages developer balances and escrow custody
type Ledger struct {
	store Store
}

// New creates a new ledger
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns a developer's current balance. Unknown accounts report
// a zero balance rather than an error; accounts exist lazily.
func (l *Ledger) GetBalance(ctx context.Context, account string) (*Balance, error) {
	return l.store.GetBalance(ctx, normalize(account))
}

// Deposit credits a developer's balance
func (l *Ledger) Deposit(ctx context.Context, account string, amountCents int64, reference string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	done := observeOp("deposit")
	defer done()

	return l.store.Credit(ctx, normalize(account), amountCents, reference, EntryDeposit)
}

// EscrowLock moves funds from a developer's available balance into custody.
// Fails with ErrInsufficientFunds when the balance cannot cover the amount.
func (l *Ledger) EscrowLock(ctx context.Context, account string, amountCents int64, reference string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	done := observeOp("escrow_lock")
	defer done()

	if err := l.store.Lock(ctx, normalize(account), amountCents, reference); err != nil {
		return err
	}
	metrics.EscrowLockedCents.Add(float64(amountCents))
	return nil
}

// ReleaseEscrow moves funds from custody to a developer's available balance.
func (l *Ledger) ReleaseEscrow(ctx context.Context, account string, amountCents int64, reference string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	done := observeOp("escrow_release")
	defer done()

	if err := l.store.Release(ctx, normalize(account), amountCents, reference, EntryEscrowRelease); err != nil {
		return err
	}
	metrics.EscrowReleasedCents.Add(float64(amountCents))
	return nil
}

// RefundEscrow returns custody funds to the depositing developer.
func (l *Ledger) RefundEscrow(ctx context.Context, account string, amountCents int64, reference string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	done := observeOp("escrow_refund")
	defer done()

	if err := l.store.Release(ctx, normalize(account), amountCents, reference, EntryEscrowRefund); err != nil {
		return err
	}
	metrics.EscrowRefundedCents.Add(float64(amountCents))
	return nil
}

// SplitEscrow disburses custody funds to both session participants in a
// single atomic transfer. Zero legs are skipped; any remainder the caller
// did not allocate stays in custody.
func (l *Ledger) SplitEscrow(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error {
	if creatorCents < 0 || partnerCents < 0 || creatorCents+partnerCents == 0 {
		return ErrInvalidAmount
	}
	done := observeOp("escrow_split")
	defer done()

	if err := l.store.Split(ctx, normalize(creator), normalize(partner), creatorCents, partnerCents, reference); err != nil {
		return err
	}
	metrics.EscrowSplitCents.Add(float64(creatorCents + partnerCents))
	return nil
}

// CustodyBalance returns the total value currently held in escrow custody,
// including dust stranded by dispute split rounding.
func (l *Ledger) CustodyBalance(ctx context.Context) (int64, error) {
	return l.store.CustodyBalance(ctx)
}

// GetHistory returns a page of ledger entries for a developer, newest
// first, plus the cursor for the next page ("" when exhausted).
func (l *Ledger) GetHistory(ctx context.Context, account string, cursor string, limit int) ([]*Entry, string, error) {
	if limit <= 0 {
		limit = 50
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	entries, err := l.store.GetHistory(ctx, normalize(account), before, limit+1)
	if err != nil {
		return nil, "", err
	}
	entries, next := pagination.Page(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	return entries, next, nil
}

// Totals aggregates the whole book for conservation auditing.
func (l *Ledger) Totals(ctx context.Context) (*AuditTotals, error) {
	return l.store.Totals(ctx)
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

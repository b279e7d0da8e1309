// Package reconciliation audits the money ledger for conservation drift.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/Obagson/code-nest/internal/ledger"
)

// TotalsProvider returns ledger-wide balance and journal totals.
type TotalsProvider interface {
	Totals(ctx context.Context) (*ledger.AuditTotals, error)
}

// Result holds the outcome of a conservation check. Every cent ever
// deposited must sit in an available balance or in the custody pool, and
// the journal must fold to the available balances.
type Result struct {
	Match             bool      `json:"match"`
	AvailableCents    int64     `json:"availableCents"`
	CustodyCents      int64     `json:"custodyCents"`
	DepositCents      int64     `json:"depositCents"`
	DriftCents        int64     `json:"driftCents"`
	JournalDriftCents int64     `json:"journalDriftCents"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// Service performs conservation checks against the ledger.
type Service struct {
	totals TotalsProvider
}

// NewService creates a reconciliation service.
func NewService(totals TotalsProvider) *Service {
	return &Service{totals: totals}
}

// Check compares total deposits against the sum of available balances and
// the custody pool, and the journal net against the available balances.
func (s *Service) Check(ctx context.Context) (*Result, error) {
	start := time.Now()

	t, err := s.totals.Totals(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum ledger totals: %w", err)
	}

	drift := t.DepositCents - t.AvailableCents - t.CustodyCents
	journalDrift := t.AvailableCents - t.EntryNetCents

	reconcileDriftCents.Set(float64(drift))
	reconcileJournalDriftCents.Set(float64(journalDrift))
	reconcileDuration.Observe(time.Since(start).Seconds())

	return &Result{
		Match:             drift == 0 && journalDrift == 0,
		AvailableCents:    t.AvailableCents,
		CustodyCents:      t.CustodyCents,
		DepositCents:      t.DepositCents,
		DriftCents:        drift,
		JournalDriftCents: journalDrift,
		CheckedAt:         time.Now().UTC(),
	}, nil
}

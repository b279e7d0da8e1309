package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Obagson/code-nest/internal/idgen"
	"github.com/Obagson/code-nest/internal/pagination"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Balance
	custody  int64
	entries  []*Entry
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Balance),
	}
}

// account returns the balance record for an account, creating a zero record
// if absent. Caller must hold the lock.
func (m *MemoryStore) account(name string) *Balance {
	b, ok := m.accounts[name]
	if !ok {
		b = &Balance{Account: name}
		m.accounts[name] = b
	}
	return b
}

func (m *MemoryStore) record(account, entryType string, amountCents int64, reference string) {
	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("led_"),
		Account:     account,
		Type:        entryType,
		AmountCents: amountCents,
		Reference:   reference,
		CreatedAt:   time.Now(),
	})
}

func (m *MemoryStore) GetBalance(ctx context.Context, account string) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.accounts[account]
	if !ok {
		return &Balance{Account: account}, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Credit(ctx context.Context, account string, amountCents int64, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.account(account)
	b.AvailableCents += amountCents
	b.TotalInCents += amountCents
	b.UpdatedAt = time.Now()
	m.record(account, description, amountCents, reference)
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context, account string, amountCents int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.account(account)
	if b.AvailableCents < amountCents {
		return ErrInsufficientFunds
	}
	b.AvailableCents -= amountCents
	b.TotalOutCents += amountCents
	b.UpdatedAt = time.Now()
	m.custody += amountCents
	m.record(account, EntryEscrowLock, -amountCents, reference)
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, account string, amountCents int64, reference, entryType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.custody < amountCents {
		return ErrInsufficientFunds
	}
	m.custody -= amountCents
	b := m.account(account)
	b.AvailableCents += amountCents
	b.TotalInCents += amountCents
	b.UpdatedAt = time.Now()
	m.record(account, entryType, amountCents, reference)
	return nil
}

func (m *MemoryStore) Split(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := creatorCents + partnerCents
	if m.custody < total {
		return ErrInsufficientFunds
	}
	m.custody -= total

	now := time.Now()
	if creatorCents > 0 {
		b := m.account(creator)
		b.AvailableCents += creatorCents
		b.TotalInCents += creatorCents
		b.UpdatedAt = now
		m.record(creator, EntryEscrowSplit, creatorCents, reference)
	}
	if partnerCents > 0 {
		b := m.account(partner)
		b.AvailableCents += partnerCents
		b.TotalInCents += partnerCents
		b.UpdatedAt = now
		m.record(partner, EntryEscrowSplit, partnerCents, reference)
	}
	return nil
}

func (m *MemoryStore) CustodyBalance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.custody, nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, account string, before *pagination.Cursor, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Entry
	// Newest first
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.Account != account || !before.Before(e.CreatedAt, e.ID) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) Totals(ctx context.Context) (*AuditTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &AuditTotals{CustodyCents: m.custody}
	for _, b := range m.accounts {
		t.AvailableCents += b.AvailableCents
	}
	for _, e := range m.entries {
		t.EntryNetCents += e.AmountCents
		if e.Type == EntryDeposit {
			t.DepositCents += e.AmountCents
		}
	}
	return t, nil
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Obagson/code-nest/internal/idgen"
	"github.com/Obagson/code-nest/internal/pagination"
)

// PostgresStore persists ledger data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, account string) (*Balance, error) {
	b := &Balance{Account: account}
	err := p.db.QueryRowContext(ctx, `
		SELECT available_cents, total_in_cents, total_out_cents, updated_at
		FROM ledger_accounts WHERE account = $1`, account,
	).Scan(&b.AvailableCents, &b.TotalInCents, &b.TotalOutCents, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		// Accounts exist lazily; unknown accounts report a zero balance.
		return &Balance{Account: account}, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// withTx runs fn inside a transaction and commits or rolls back.
func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func creditTx(ctx context.Context, tx *sql.Tx, account string, amountCents int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (account, available_cents, total_in_cents, total_out_cents, updated_at)
		VALUES ($1, $2, $2, 0, NOW())
		ON CONFLICT (account) DO UPDATE SET
			available_cents = ledger_accounts.available_cents + EXCLUDED.available_cents,
			total_in_cents  = ledger_accounts.total_in_cents + EXCLUDED.total_in_cents,
			updated_at      = NOW()`,
		account, amountCents,
	)
	return err
}

func recordTx(ctx context.Context, tx *sql.Tx, account, entryType string, amountCents int64, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account, entry_type, amount_cents, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		idgen.WithPrefix("led_"), account, entryType, amountCents, reference, time.Now(),
	)
	return err
}

// debitCustodyTx subtracts from the custody pool, failing when the pool
// cannot cover the amount.
func debitCustodyTx(ctx context.Context, tx *sql.Tx, amountCents int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_custody SET balance_cents = balance_cents - $1
		WHERE id = 1 AND balance_cents >= $1`, amountCents,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (p *PostgresStore) Credit(ctx context.Context, account string, amountCents int64, reference, description string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if err := creditTx(ctx, tx, account, amountCents); err != nil {
			return err
		}
		return recordTx(ctx, tx, account, description, amountCents, reference)
	})
}

func (p *PostgresStore) Lock(ctx context.Context, account string, amountCents int64, reference string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE ledger_accounts SET
				available_cents = available_cents - $2,
				total_out_cents = total_out_cents + $2,
				updated_at      = NOW()
			WHERE account = $1 AND available_cents >= $2`,
			account, amountCents,
		)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_custody SET balance_cents = balance_cents + $1 WHERE id = 1`,
			amountCents,
		); err != nil {
			return fmt.Errorf("credit custody: %w", err)
		}

		return recordTx(ctx, tx, account, EntryEscrowLock, -amountCents, reference)
	})
}

func (p *PostgresStore) Release(ctx context.Context, account string, amountCents int64, reference, entryType string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if err := debitCustodyTx(ctx, tx, amountCents); err != nil {
			return err
		}
		if err := creditTx(ctx, tx, account, amountCents); err != nil {
			return err
		}
		return recordTx(ctx, tx, account, entryType, amountCents, reference)
	})
}

func (p *PostgresStore) Split(ctx context.Context, creator, partner string, creatorCents, partnerCents int64, reference string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if err := debitCustodyTx(ctx, tx, creatorCents+partnerCents); err != nil {
			return err
		}
		if creatorCents > 0 {
			if err := creditTx(ctx, tx, creator, creatorCents); err != nil {
				return err
			}
			if err := recordTx(ctx, tx, creator, EntryEscrowSplit, creatorCents, reference); err != nil {
				return err
			}
		}
		if partnerCents > 0 {
			if err := creditTx(ctx, tx, partner, partnerCents); err != nil {
				return err
			}
			if err := recordTx(ctx, tx, partner, EntryEscrowSplit, partnerCents, reference); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PostgresStore) CustodyBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `SELECT balance_cents FROM ledger_custody WHERE id = 1`).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (p *PostgresStore) GetHistory(ctx context.Context, account string, before *pagination.Cursor, limit int) ([]*Entry, error) {
	query := `
		SELECT id, account, entry_type, amount_cents, reference, created_at
		FROM ledger_entries
		WHERE account = $1`
	args := []any{account}
	if before != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Account, &e.Type, &e.AmountCents, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) Totals(ctx context.Context) (*AuditTotals, error) {
	t := &AuditTotals{}
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(available_cents), 0) FROM ledger_accounts),
			COALESCE((SELECT balance_cents FROM ledger_custody WHERE id = 1), 0),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE entry_type = 'deposit'),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries)`,
	).Scan(&t.AvailableCents, &t.CustodyCents, &t.DepositCents, &t.EntryNetCents)
	if err != nil {
		return nil, err
	}
	return t, nil
}

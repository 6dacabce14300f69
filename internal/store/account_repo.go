package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsift/invoicesync/internal/model"
)

// CreateAccount inserts a new mailbox account.
func (s *Store) CreateAccount(ctx context.Context, acct *model.Account) error {
	if acct.ID == "" {
		acct.ID = model.NewID()
	}
	if acct.Status == "" {
		acct.Status = model.AccountStatusConnected
	}
	now := time.Now()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, host, port, ssl, password, last_uid, status, status_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.Host, acct.Port, acct.SSL, acct.Password,
		acct.LastUID, acct.Status, acct.StatusError, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// ListAccounts returns all accounts, ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var acct model.Account
	err := s.db.GetContext(ctx, &acct, `SELECT * FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acct, nil
}

// UpdateAccountCursor persists the last processed mailbox position.
// Callers advance the cursor one position at a time, in ascending order.
func (s *Store) UpdateAccountCursor(ctx context.Context, id string, uid uint32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_uid = ?, updated_at = ? WHERE id = ?`,
		uid, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update account cursor: %w", err)
	}
	return nil
}

// UpdateAccountStatus records the outcome of the latest scan attempt.
func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus, statusError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET status = ?, status_error = ?, updated_at = ? WHERE id = ?`,
		status, statusError, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	return nil
}

// DeleteAccount removes an account and (via FK cascade) its invoices and links.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

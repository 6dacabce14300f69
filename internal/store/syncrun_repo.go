package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsift/invoicesync/internal/model"
)

// CreateSyncRun inserts a new run row with status=running.
func (s *Store) CreateSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.ID == "" {
		run.ID = model.NewID()
	}
	if run.Status == "" {
		run.Status = model.SyncStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, status, started_at, total_accounts, processed_accounts, total_invoices, total_emails, emails_processed, current_account_email, message, error_message, date_from, date_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.StartedAt, run.TotalAccounts, run.ProcessedAccounts,
		run.TotalInvoices, run.TotalEmails, run.EmailsProcessed, run.CurrentAccountEmail,
		run.Message, run.ErrorMessage, run.DateFrom, run.DateTo,
	)
	if err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// UpdateSyncRun persists a run's current progress and status.
func (s *Store) UpdateSyncRun(ctx context.Context, run *model.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, completed_at = ?, total_accounts = ?, processed_accounts = ?,
			total_invoices = ?, total_emails = ?, emails_processed = ?, current_account_email = ?,
			message = ?, error_message = ?
		WHERE id = ?`,
		run.Status, run.CompletedAt, run.TotalAccounts, run.ProcessedAccounts,
		run.TotalInvoices, run.TotalEmails, run.EmailsProcessed, run.CurrentAccountEmail,
		run.Message, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	return nil
}

// GetSyncRun returns a run by ID.
func (s *Store) GetSyncRun(ctx context.Context, id string) (*model.SyncRun, error) {
	var run model.SyncRun
	err := s.db.GetContext(ctx, &run, `SELECT * FROM sync_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return &run, nil
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []model.SyncRun
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

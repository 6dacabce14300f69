package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mailsift/invoicesync/internal/model"
)

// InvoiceExists checks for an existing invoice with the same
// (account, message, filename) identity.
func (s *Store) InvoiceExists(ctx context.Context, accountID, messageID, filename string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM invoices WHERE account_id = ? AND message_id = ? AND filename = ?`,
		accountID, messageID, filename,
	)
	if err != nil {
		return false, fmt.Errorf("check invoice exists: %w", err)
	}
	return count > 0, nil
}

// InsertInvoice persists one retained attachment as an invoice record.
func (s *Store) InsertInvoice(ctx context.Context, inv *model.Invoice) error {
	if inv.ID == "" {
		inv.ID = model.NewID()
	}
	if inv.SourceType == "" {
		inv.SourceType = "attachment"
	}
	inv.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, account_id, filename, stored_path, size, subject, from_addr, date, message_id, vendor, amount, tags, source_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AccountID, inv.Filename, inv.StoredPath, inv.Size, inv.Subject,
		inv.From, inv.Date, inv.MessageID, inv.Vendor, inv.Amount, inv.Tags,
		inv.SourceType, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// ListInvoices returns invoices, optionally filtered by account.
func (s *Store) ListInvoices(ctx context.Context, accountID string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	var err error
	if accountID == "" {
		err = s.db.SelectContext(ctx, &invoices, `SELECT * FROM invoices ORDER BY created_at DESC`)
	} else {
		err = s.db.SelectContext(ctx, &invoices,
			`SELECT * FROM invoices WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// InsertPendingLink records a candidate invoice URL. Duplicates on
// (account_id, url) are silently ignored; the data is advisory.
func (s *Store) InsertPendingLink(ctx context.Context, link *model.PendingLink) error {
	if link.ID == "" {
		link.ID = model.NewID()
	}
	if link.Status == "" {
		link.Status = "pending"
	}
	link.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pending_links (id, account_id, url, amount, subject, from_addr, date, message_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.AccountID, link.URL, link.Amount, link.Subject,
		link.From, link.Date, link.MessageID, link.Status, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending link: %w", err)
	}
	return nil
}

// ListPendingLinks returns pending links, optionally filtered by account.
func (s *Store) ListPendingLinks(ctx context.Context, accountID string) ([]model.PendingLink, error) {
	var links []model.PendingLink
	var err error
	if accountID == "" {
		err = s.db.SelectContext(ctx, &links, `SELECT * FROM pending_links ORDER BY created_at DESC`)
	} else {
		err = s.db.SelectContext(ctx, &links,
			`SELECT * FROM pending_links WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("list pending links: %w", err)
	}
	return links, nil
}

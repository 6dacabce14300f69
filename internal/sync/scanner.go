package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mailsift/invoicesync/internal/classify"
	"github.com/mailsift/invoicesync/internal/eml"
	"github.com/mailsift/invoicesync/internal/model"
	"github.com/mailsift/invoicesync/internal/rules"
	"github.com/mailsift/invoicesync/internal/storage"
)

// Transport abstracts the mail protocol. Implemented by sync/imap.
type Transport interface {
	Connect(ctx context.Context, acct model.Account) (Conn, error)
}

// Conn is one exclusive mailbox connection. Close must not raise and must be
// safe to call after any failure.
type Conn interface {
	SelectInboxReadOnly(ctx context.Context) error
	// SearchPositions returns positions matching the date window, already
	// restricted to positions greater than afterPosition where the server
	// supports it. Callers must not rely on ordering.
	SearchPositions(ctx context.Context, dateFrom, dateTo *time.Time, afterPosition uint32) ([]uint32, error)
	FetchRaw(ctx context.Context, position uint32) ([]byte, error)
	Close()
}

// Store is the persistence surface the sync core consumes.
type Store interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	UpdateAccountCursor(ctx context.Context, id string, uid uint32) error
	UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus, statusError string) error

	ListActiveRules(ctx context.Context) ([]model.Rule, error)

	InvoiceExists(ctx context.Context, accountID, messageID, filename string) (bool, error)
	InsertInvoice(ctx context.Context, inv *model.Invoice) error
	InsertPendingLink(ctx context.Context, link *model.PendingLink) error

	CreateSyncRun(ctx context.Context, run *model.SyncRun) error
	UpdateSyncRun(ctx context.Context, run *model.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*model.SyncRun, error)
}

// Progress is a snapshot of one account scan, reported periodically.
type Progress struct {
	Candidates      int // total positions selected for this account
	EmailsProcessed int
	InvoicesFound   int
}

// ProgressFunc receives incremental scan progress.
type ProgressFunc func(p Progress)

// progressEvery controls how often the scanner reports counts upward.
const progressEvery = 10

// ScanResult holds the final counts for one account scan.
type ScanResult struct {
	EmailsProcessed int
	InvoicesFound   int
}

// Scanner drives one mailbox end-to-end: connect, compute unseen positions,
// classify, persist, and advance the account cursor.
type Scanner struct {
	transport  Transport
	store      Store
	blobs      storage.BlobStore
	classifier *classify.Classifier
	logger     *slog.Logger
}

// NewScanner creates an account scanner.
func NewScanner(transport Transport, st Store, blobs storage.BlobStore, classifier *classify.Classifier, logger *slog.Logger) *Scanner {
	return &Scanner{
		transport:  transport,
		store:      st,
		blobs:      blobs,
		classifier: classifier,
		logger:     logger,
	}
}

// ScanAccount processes all unseen messages of one account. Connection-level
// failures propagate to the caller; per-message failures are absorbed and the
// message is still counted as processed. The cursor advances one position at
// a time, in ascending order, after each position's side effects.
func (s *Scanner) ScanAccount(ctx context.Context, acct model.Account, ruleSet []model.Rule, dateFrom, dateTo *time.Time, flag *Flag, onProgress ProgressFunc) (ScanResult, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	logger := s.logger.With("account", acct.Email)

	conn, err := s.transport.Connect(ctx, acct)
	if err != nil {
		return ScanResult{}, fmt.Errorf("connect %s: %w", acct.Email, err)
	}
	defer conn.Close()

	if err := conn.SelectInboxReadOnly(ctx); err != nil {
		return ScanResult{}, fmt.Errorf("select inbox: %w", err)
	}

	positions, err := conn.SearchPositions(ctx, dateFrom, dateTo, acct.LastUID)
	if err != nil {
		return ScanResult{}, fmt.Errorf("search positions: %w", err)
	}
	candidates := candidatePositions(positions, acct.LastUID)

	logger.Info("scan started", "candidates", len(candidates), "cursor", acct.LastUID)
	onProgress(Progress{Candidates: len(candidates)})

	var result ScanResult
	for _, pos := range candidates {
		// Cooperative cancellation: never interrupt a message mid-flight.
		if flag != nil && flag.Cancelled() {
			logger.Info("scan cancelled", "processed", result.EmailsProcessed)
			break
		}

		invoices := s.processPosition(ctx, conn, acct, ruleSet, pos, logger)
		result.EmailsProcessed++
		result.InvoicesFound += invoices

		// Advance the cursor past this position, whatever happened to it.
		acct.LastUID = pos
		if err := s.store.UpdateAccountCursor(ctx, acct.ID, pos); err != nil {
			logger.Warn("cursor update failed", "position", pos, "error", err)
		}

		if result.EmailsProcessed%progressEvery == 0 {
			onProgress(Progress{
				Candidates:      len(candidates),
				EmailsProcessed: result.EmailsProcessed,
				InvoicesFound:   result.InvoicesFound,
			})
		}
	}

	onProgress(Progress{
		Candidates:      len(candidates),
		EmailsProcessed: result.EmailsProcessed,
		InvoicesFound:   result.InvoicesFound,
	})
	logger.Info("scan finished", "processed", result.EmailsProcessed, "invoices", result.InvoicesFound)
	return result, nil
}

// processPosition fetches, classifies, and persists one message. Returns the
// number of invoice records created. All failures are absorbed here; the
// scanner counts the position as processed regardless.
func (s *Scanner) processPosition(ctx context.Context, conn Conn, acct model.Account, ruleSet []model.Rule, pos uint32, logger *slog.Logger) int {
	raw, err := conn.FetchRaw(ctx, pos)
	if err != nil || len(raw) == 0 {
		logger.Warn("fetch failed, skipping position", "position", pos, "error", err)
		return 0
	}

	email, err := eml.Parse(raw)
	if err != nil {
		logger.Warn("parse failed, skipping position", "position", pos, "error", err)
		return 0
	}

	if !s.classifier.IsRelevant(email) {
		return 0
	}
	if rules.IsExcluded(email.From, email.Subject, ruleSet) {
		logger.Debug("message excluded by rule", "position", pos, "from", email.From)
		return 0
	}

	invoices := 0
	for _, att := range s.classifier.PDFAttachments(email, pos) {
		exists, err := s.store.InvoiceExists(ctx, acct.ID, email.MessageID, att.Filename)
		if err != nil {
			logger.Warn("duplicate check failed", "position", pos, "filename", att.Filename, "error", err)
			continue
		}
		if exists {
			logger.Debug("duplicate invoice skipped", "filename", att.Filename, "message_id", email.MessageID)
			continue
		}

		key := fmt.Sprintf("%s/%d/%s", acct.ID, pos, att.Filename)
		storedPath, err := s.blobs.Upload(ctx, key, att.Content, att.ContentType)
		if err != nil {
			logger.Warn("attachment upload failed", "position", pos, "filename", att.Filename, "error", err)
			continue
		}

		inv := &model.Invoice{
			AccountID:  acct.ID,
			Filename:   att.Filename,
			StoredPath: storedPath,
			Size:       att.Size,
			Subject:    email.Subject,
			From:       email.From,
			Date:       email.Date,
			MessageID:  email.MessageID,
			Vendor:     vendorGuess(email.From),
			SourceType: "attachment",
		}
		if err := s.store.InsertInvoice(ctx, inv); err != nil {
			logger.Warn("invoice insert failed", "position", pos, "filename", att.Filename, "error", err)
			continue
		}
		invoices++
	}

	for _, link := range s.classifier.InvoiceLinks(email) {
		pl := &model.PendingLink{
			AccountID: acct.ID,
			URL:       link.URL,
			Amount:    link.Amount,
			Subject:   email.Subject,
			From:      email.From,
			Date:      email.Date,
			MessageID: email.MessageID,
			Status:    "pending",
		}
		// Advisory data: duplicate-key failures are swallowed by the store,
		// anything else is only worth a log line.
		if err := s.store.InsertPendingLink(ctx, pl); err != nil {
			logger.Warn("pending link insert failed", "position", pos, "url", link.URL, "error", err)
		}
	}

	return invoices
}

// candidatePositions deduplicates and sorts positions ascending, dropping
// anything at or below the cursor. Processing order is always ascending so
// the monotonic-cursor invariant holds even for unordered search results.
func candidatePositions(positions []uint32, afterPosition uint32) []uint32 {
	seen := make(map[uint32]bool, len(positions))
	out := make([]uint32, 0, len(positions))
	for _, pos := range positions {
		if pos <= afterPosition || seen[pos] {
			continue
		}
		seen[pos] = true
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// vendorGuess derives a vendor name from a From header. The display name
// wins when present; otherwise the first domain label, capitalized.
func vendorGuess(from string) string {
	if lt := strings.Index(from, "<"); lt > 0 {
		name := strings.TrimSpace(from[:lt])
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}

	at := strings.Index(from, "@")
	if at < 0 {
		return ""
	}
	domain := from[at+1:]
	if end := strings.IndexAny(domain, ">."); end >= 0 {
		domain = domain[:end]
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	return strings.ToUpper(domain[:1]) + domain[1:]
}

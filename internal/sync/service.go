// Package sync orchestrates invoice scans across mailbox accounts: the run
// registry, the per-account scanner, and the run lifecycle.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mailsift/invoicesync/internal/model"
)

// ErrNoAccounts is returned by StartSync when the resolved account set is
// empty. It is the only synchronous failure once a request is valid.
var ErrNoAccounts = eris.New("no accounts to sync")

// Request selects what a sync run covers.
type Request struct {
	AccountID string     `json:"account_id,omitempty"` // empty = all accounts
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
}

// Service drives sync runs. StartSync returns immediately; the scan proceeds
// in a background goroutine and reports only through the persisted SyncRun
// and the registry.
type Service struct {
	store    Store
	scanner  *Scanner
	registry *Registry
	logger   *slog.Logger
}

// NewService creates the sync orchestrator.
func NewService(st Store, scanner *Scanner, registry *Registry, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		scanner:  scanner,
		registry: registry,
		logger:   logger,
	}
}

// StartSync resolves the account set, creates the run row, registers the run,
// and kicks off the background scan. The returned run ID is the caller's only
// handle; run-level errors after this point surface via the SyncRun row.
func (s *Service) StartSync(ctx context.Context, req Request) (string, error) {
	accounts, err := s.resolveAccounts(ctx, req.AccountID)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrNoAccounts
	}

	ruleSet, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return "", fmt.Errorf("load rules: %w", err)
	}

	run := &model.SyncRun{
		ID:            model.NewID(),
		Status:        model.SyncStatusRunning,
		StartedAt:     time.Now(),
		TotalAccounts: len(accounts),
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
	}
	if err := s.store.CreateSyncRun(ctx, run); err != nil {
		return "", fmt.Errorf("create sync run: %w", err)
	}

	flag := s.registry.Register(run.ID)
	go s.execute(run, accounts, ruleSet, flag)

	return run.ID, nil
}

// Status returns the current state of a run.
func (s *Service) Status(ctx context.Context, runID string) (*model.SyncRun, error) {
	return s.store.GetSyncRun(ctx, runID)
}

// Cancel requests cooperative cancellation of an in-flight run. Returns
// false when no matching run is registered.
func (s *Service) Cancel(runID string) bool {
	return s.registry.RequestCancel(runID)
}

func (s *Service) resolveAccounts(ctx context.Context, accountID string) ([]model.Account, error) {
	if accountID != "" {
		acct, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return []model.Account{*acct}, nil
	}
	return s.store.ListAccounts(ctx)
}

// execute is the background run loop. The registry entry is removed
// unconditionally when the run reaches any terminal state; a panic escaping
// the account loop finalizes the run as failed instead of killing the
// process.
func (s *Service) execute(run *model.SyncRun, accounts []model.Account, ruleSet []model.Rule, flag *Flag) {
	ctx := context.Background()
	logger := s.logger.With("run", run.ID)

	defer s.registry.Unregister(run.ID)
	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("sync run panicked: %v", r)
			logger.Error("run failed", "error", err)
			s.finalize(ctx, run, model.SyncStatusFailed, "", eris.ToString(err, false))
		}
	}()

	logger.Info("run started", "accounts", len(accounts))

	for i := range accounts {
		acct := accounts[i]

		// Cancellation point: accounts not yet started are never attempted.
		if flag.Cancelled() {
			s.finalize(ctx, run, model.SyncStatusCancelled, "sync cancelled", "")
			logger.Info("run cancelled", "processed_accounts", run.ProcessedAccounts)
			return
		}

		run.CurrentAccountEmail = acct.Email
		run.ProcessedAccounts = i
		if err := s.store.UpdateSyncRun(ctx, run); err != nil {
			logger.Warn("run update failed", "error", err)
		}

		baseEmails := run.EmailsProcessed
		baseInvoices := run.TotalInvoices
		baseTotal := run.TotalEmails
		onProgress := func(p Progress) {
			run.TotalEmails = baseTotal + p.Candidates
			run.EmailsProcessed = baseEmails + p.EmailsProcessed
			run.TotalInvoices = baseInvoices + p.InvoicesFound
			if err := s.store.UpdateSyncRun(ctx, run); err != nil {
				logger.Warn("progress update failed", "error", err)
			}
		}

		result, err := s.scanner.ScanAccount(ctx, acct, ruleSet, run.DateFrom, run.DateTo, flag, onProgress)
		if err != nil {
			// One account's failure never aborts the run.
			logger.Warn("account scan failed", "account", acct.Email, "error", err)
			if serr := s.store.UpdateAccountStatus(ctx, acct.ID, model.AccountStatusError, err.Error()); serr != nil {
				logger.Warn("account status update failed", "error", serr)
			}
			run.ProcessedAccounts = i + 1
			continue
		}

		if err := s.store.UpdateAccountStatus(ctx, acct.ID, model.AccountStatusConnected, ""); err != nil {
			logger.Warn("account status update failed", "error", err)
		}

		run.EmailsProcessed = baseEmails + result.EmailsProcessed
		run.TotalInvoices = baseInvoices + result.InvoicesFound
		run.ProcessedAccounts = i + 1
		if err := s.store.UpdateSyncRun(ctx, run); err != nil {
			logger.Warn("run update failed", "error", err)
		}
	}

	if flag.Cancelled() {
		s.finalize(ctx, run, model.SyncStatusCancelled, "sync cancelled", "")
		logger.Info("run cancelled", "processed_accounts", run.ProcessedAccounts)
		return
	}

	summary := fmt.Sprintf("processed %d emails across %d accounts, %d invoices found",
		run.EmailsProcessed, run.ProcessedAccounts, run.TotalInvoices)
	s.finalize(ctx, run, model.SyncStatusCompleted, summary, "")
	logger.Info("run completed", "emails", run.EmailsProcessed, "invoices", run.TotalInvoices)
}

// finalize sets the terminal status exactly once and persists it.
func (s *Service) finalize(ctx context.Context, run *model.SyncRun, status model.SyncStatus, message, errorMessage string) {
	if run.Status.Terminal() {
		return
	}
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	run.CurrentAccountEmail = ""
	if message != "" {
		run.Message = message
	}
	if errorMessage != "" {
		run.ErrorMessage = errorMessage
	}
	if err := s.store.UpdateSyncRun(ctx, run); err != nil {
		s.logger.Error("finalize run failed", "run", run.ID, "status", status, "error", err)
	}
}

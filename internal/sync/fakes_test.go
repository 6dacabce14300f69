package sync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/mailsift/invoicesync/internal/classify"
	"github.com/mailsift/invoicesync/internal/model"
	"github.com/mailsift/invoicesync/internal/storage"
)

// --- fake transport ---

type fakeMailbox struct {
	messages   map[uint32][]byte
	connectErr error
	fetchErr   map[uint32]error

	// afterFetch runs after each successful fetch, e.g. to cancel mid-scan.
	afterFetch func(pos uint32)
}

type fakeTransport struct {
	mu        gosync.Mutex
	mailboxes map[string]*fakeMailbox // by account ID
	connects  []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{mailboxes: make(map[string]*fakeMailbox)}
}

func (t *fakeTransport) add(accountID string, mbox *fakeMailbox) {
	t.mailboxes[accountID] = mbox
}

func (t *fakeTransport) connectCount(accountID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, id := range t.connects {
		if id == accountID {
			n++
		}
	}
	return n
}

func (t *fakeTransport) Connect(ctx context.Context, acct model.Account) (Conn, error) {
	t.mu.Lock()
	t.connects = append(t.connects, acct.ID)
	t.mu.Unlock()

	mbox, ok := t.mailboxes[acct.ID]
	if !ok {
		return nil, errors.New("unknown mailbox")
	}
	if mbox.connectErr != nil {
		return nil, mbox.connectErr
	}
	return &fakeConn{mbox: mbox}, nil
}

type fakeConn struct {
	mbox   *fakeMailbox
	closed bool
}

func (c *fakeConn) SelectInboxReadOnly(ctx context.Context) error { return nil }

func (c *fakeConn) SearchPositions(ctx context.Context, dateFrom, dateTo *time.Time, afterPosition uint32) ([]uint32, error) {
	var out []uint32
	for pos := range c.mbox.messages {
		if pos > afterPosition {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (c *fakeConn) FetchRaw(ctx context.Context, position uint32) ([]byte, error) {
	if err, ok := c.mbox.fetchErr[position]; ok {
		return nil, err
	}
	raw, ok := c.mbox.messages[position]
	if !ok {
		return nil, fmt.Errorf("no message at %d", position)
	}
	if c.mbox.afterFetch != nil {
		c.mbox.afterFetch(position)
	}
	return raw, nil
}

func (c *fakeConn) Close() { c.closed = true }

// --- fake store ---

type invoiceKey struct{ account, message, filename string }
type linkKey struct{ account, url string }

type fakeStore struct {
	mu gosync.Mutex

	accounts     []model.Account
	activeRules  []model.Rule
	invoices     map[invoiceKey]model.Invoice
	pendingLinks map[linkKey]model.PendingLink
	runs         map[string]model.SyncRun

	cursorUpdates map[string][]uint32
	statuses      map[string]model.AccountStatus
	statusErrors  map[string]string

	// onRunUpdate runs on every UpdateSyncRun, e.g. to trigger cancellation.
	onRunUpdate func(run model.SyncRun)
}

func newFakeStore(accounts ...model.Account) *fakeStore {
	return &fakeStore{
		accounts:      accounts,
		invoices:      make(map[invoiceKey]model.Invoice),
		pendingLinks:  make(map[linkKey]model.PendingLink),
		runs:          make(map[string]model.SyncRun),
		cursorUpdates: make(map[string][]uint32),
		statuses:      make(map[string]model.AccountStatus),
		statusErrors:  make(map[string]string),
	}
}

func (s *fakeStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *fakeStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			acct := a
			return &acct, nil
		}
	}
	return nil, errors.New("account not found")
}

func (s *fakeStore) UpdateAccountCursor(ctx context.Context, id string, uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorUpdates[id] = append(s.cursorUpdates[id], uid)
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			s.accounts[i].LastUID = uid
		}
	}
	return nil
}

func (s *fakeStore) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus, statusError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	s.statusErrors[id] = statusError
	return nil
}

func (s *fakeStore) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRules, nil
}

func (s *fakeStore) InvoiceExists(ctx context.Context, accountID, messageID, filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.invoices[invoiceKey{accountID, messageID, filename}]
	return ok, nil
}

func (s *fakeStore) InsertInvoice(ctx context.Context, inv *model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invoiceKey{inv.AccountID, inv.MessageID, inv.Filename}
	if _, ok := s.invoices[key]; ok {
		return errors.New("UNIQUE constraint failed")
	}
	s.invoices[key] = *inv
	return nil
}

// InsertPendingLink mirrors INSERT OR IGNORE: duplicates succeed silently.
func (s *fakeStore) InsertPendingLink(ctx context.Context, link *model.PendingLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{link.AccountID, link.URL}
	if _, ok := s.pendingLinks[key]; ok {
		return nil
	}
	s.pendingLinks[key] = *link
	return nil
}

func (s *fakeStore) CreateSyncRun(ctx context.Context, run *model.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *fakeStore) UpdateSyncRun(ctx context.Context, run *model.SyncRun) error {
	s.mu.Lock()
	s.runs[run.ID] = *run
	hook := s.onRunUpdate
	snapshot := *run
	s.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}
	return nil
}

func (s *fakeStore) GetSyncRun(ctx context.Context, id string) (*model.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	return &run, nil
}

func (s *fakeStore) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *fakeStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingLinks)
}

// --- raw message builders ---

const crlf = "\r\n"

func textMessage(from, subject, msgID, body string) []byte {
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: me@example.com",
		"Subject: " + subject,
		"Date: Mon, 02 Jun 2025 10:30:00 +0000",
		"Message-Id: <" + msgID + ">",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
		"",
	}, crlf))
}

func pdfMessage(from, subject, msgID, filename string) []byte {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 " + filename))
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: me@example.com",
		"Subject: " + subject,
		"Date: Mon, 02 Jun 2025 10:30:00 +0000",
		"Message-Id: <" + msgID + ">",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Your invoice is attached.",
		"--BOUNDARY",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="` + filename + `"`,
		"Content-Transfer-Encoding: base64",
		"",
		pdf,
		"--BOUNDARY--",
		"",
	}, crlf))
}

// --- shared helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScanner(t *testing.T, transport Transport, st Store) *Scanner {
	t.Helper()
	classifier, err := classify.New(classify.DefaultConfig())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	blobs := storage.NewFSBlobStore(t.TempDir())
	return NewScanner(transport, st, blobs, classifier, testLogger())
}

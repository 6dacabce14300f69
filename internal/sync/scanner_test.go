package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/mailsift/invoicesync/internal/model"
)

func accountFixture(id string) model.Account {
	return model.Account{ID: id, Email: id + "@example.com", Host: "imap.example.com", Port: 993, SSL: true}
}

// Account with three candidates: one PDF invoice, one excluded by sender,
// one irrelevant newsletter.
func mixedMailbox() *fakeMailbox {
	return &fakeMailbox{messages: map[uint32][]byte{
		1: pdfMessage("Acme <billing@acme.com>", "Invoice attached", "m1@acme.com", "inv-1.pdf"),
		2: pdfMessage("Spam Corp <noreply@spam.example>", "Your invoice", "m2@spam.example", "inv-2.pdf"),
		3: textMessage("News <news@example.com>", "Weekly digest", "m3@example.com", "Nothing invoice-y here at all."),
	}}
}

func excludeSpamRule() model.Rule {
	return model.Rule{
		Type: "exclude", ConditionType: model.RuleSenderContains,
		ConditionValue: "spam.example", Active: true,
	}
}

func TestScanAccountMixedMessages(t *testing.T) {
	acct := accountFixture("acct-a")
	transport := newFakeTransport()
	transport.add(acct.ID, mixedMailbox())
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	result, err := scanner.ScanAccount(context.Background(), acct, []model.Rule{excludeSpamRule()}, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("ScanAccount: %v", err)
	}

	if result.EmailsProcessed != 3 {
		t.Errorf("emails processed = %d, want 3", result.EmailsProcessed)
	}
	if result.InvoicesFound != 1 {
		t.Errorf("invoices found = %d, want 1", result.InvoicesFound)
	}
	if st.invoiceCount() != 1 {
		t.Errorf("stored invoices = %d, want 1", st.invoiceCount())
	}

	inv, ok := st.invoices[invoiceKey{"acct-a", "m1@acme.com", "inv-1.pdf"}]
	if !ok {
		t.Fatal("expected invoice record for m1@acme.com/inv-1.pdf")
	}
	if inv.Vendor != "Acme" {
		t.Errorf("vendor = %q, want Acme", inv.Vendor)
	}
	if inv.StoredPath == "" {
		t.Error("stored path is empty")
	}

	// Cursor advanced one position at a time, ascending.
	updates := st.cursorUpdates["acct-a"]
	if len(updates) != 3 {
		t.Fatalf("cursor updates = %v, want 3 entries", updates)
	}
	for i, want := range []uint32{1, 2, 3} {
		if updates[i] != want {
			t.Errorf("cursor update %d = %d, want %d", i, updates[i], want)
		}
	}
}

func TestScanAccountIncrementality(t *testing.T) {
	acct := accountFixture("acct-a")
	transport := newFakeTransport()
	transport.add(acct.ID, mixedMailbox())
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	ctx := context.Background()
	if _, err := scanner.ScanAccount(ctx, acct, nil, nil, nil, &Flag{}, nil); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// Rerun with the advanced cursor: the candidate set must be empty.
	rescan, _ := st.GetAccount(ctx, acct.ID)
	result, err := scanner.ScanAccount(ctx, *rescan, nil, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if result.EmailsProcessed != 0 {
		t.Errorf("second scan processed %d emails, want 0", result.EmailsProcessed)
	}
}

func TestScanAccountIdempotentInvoices(t *testing.T) {
	acct := accountFixture("acct-a")
	transport := newFakeTransport()
	transport.add(acct.ID, mixedMailbox())
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	ctx := context.Background()
	if _, err := scanner.ScanAccount(ctx, acct, nil, nil, nil, &Flag{}, nil); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	// Force a reprocess of the same messages (cursor reset): the duplicate
	// check on (account, message, filename) must skip them.
	result, err := scanner.ScanAccount(ctx, acct, nil, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if result.InvoicesFound != 0 {
		t.Errorf("second scan found %d invoices, want 0", result.InvoicesFound)
	}
	if n := st.invoiceCount(); n != 2 {
		// m1 plus m2 (no exclusion rule in this test).
		t.Errorf("stored invoices = %d, want 2", n)
	}
}

func TestScanAccountFetchFailureStillCounts(t *testing.T) {
	acct := accountFixture("acct-a")
	mbox := mixedMailbox()
	mbox.fetchErr = map[uint32]error{2: errors.New("boom")}
	transport := newFakeTransport()
	transport.add(acct.ID, mbox)
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	result, err := scanner.ScanAccount(context.Background(), acct, nil, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("ScanAccount: %v", err)
	}
	if result.EmailsProcessed != 3 {
		t.Errorf("emails processed = %d, want 3 (failed fetch still counts)", result.EmailsProcessed)
	}
	updates := st.cursorUpdates["acct-a"]
	if len(updates) != 3 || updates[2] != 3 {
		t.Errorf("cursor updates = %v, want advance through all positions", updates)
	}
}

func TestScanAccountCancelledMidAccount(t *testing.T) {
	acct := accountFixture("acct-a")
	mbox := mixedMailbox()
	flag := &Flag{}
	// Cancel right after the first message is fetched: the check before each
	// subsequent position must stop the loop.
	mbox.afterFetch = func(pos uint32) {
		if pos == 1 {
			flag.Cancel()
		}
	}
	transport := newFakeTransport()
	transport.add(acct.ID, mbox)
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	result, err := scanner.ScanAccount(context.Background(), acct, nil, nil, nil, flag, nil)
	if err != nil {
		t.Fatalf("ScanAccount: %v", err)
	}
	if result.EmailsProcessed != 1 {
		t.Errorf("emails processed = %d, want 1", result.EmailsProcessed)
	}
	updates := st.cursorUpdates["acct-a"]
	if len(updates) != 1 || updates[0] != 1 {
		t.Errorf("cursor updates = %v, want [1]", updates)
	}
}

func TestScanAccountConnectErrorPropagates(t *testing.T) {
	acct := accountFixture("acct-a")
	transport := newFakeTransport()
	transport.add(acct.ID, &fakeMailbox{connectErr: errors.New("auth failed")})
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	if _, err := scanner.ScanAccount(context.Background(), acct, nil, nil, nil, &Flag{}, nil); err == nil {
		t.Fatal("expected connection error to propagate")
	}
}

func TestScanAccountPendingLinks(t *testing.T) {
	acct := accountFixture("acct-a")
	body := "Your order is ready. Total: $42.00\r\nhttps://pay.example.com/invoice/download?id=5"
	mbox := &fakeMailbox{messages: map[uint32][]byte{
		1: textMessage("Shop <shop@example.com>", "Your Invoice #123", "m9@example.com", body),
	}}
	transport := newFakeTransport()
	transport.add(acct.ID, mbox)
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	result, err := scanner.ScanAccount(context.Background(), acct, nil, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("ScanAccount: %v", err)
	}
	if result.InvoicesFound != 0 {
		t.Errorf("invoices found = %d, want 0 (link only)", result.InvoicesFound)
	}
	if st.linkCount() != 1 {
		t.Fatalf("pending links = %d, want 1", st.linkCount())
	}
	link := st.pendingLinks[linkKey{"acct-a", "https://pay.example.com/invoice/download?id=5"}]
	if link.Amount != "$42.00" {
		t.Errorf("amount = %q, want $42.00", link.Amount)
	}
	if link.Status != "pending" {
		t.Errorf("status = %q, want pending", link.Status)
	}
}

func TestScanAccountExclusionPrecedence(t *testing.T) {
	acct := accountFixture("acct-a")
	// Relevant by keyword and attachment, but excluded by rule: no records,
	// yet still counted as processed.
	mbox := &fakeMailbox{messages: map[uint32][]byte{
		1: pdfMessage("Spam Corp <noreply@spam.example>", "Your invoice", "m2@spam.example", "inv.pdf"),
	}}
	transport := newFakeTransport()
	transport.add(acct.ID, mbox)
	st := newFakeStore(acct)
	scanner := testScanner(t, transport, st)

	result, err := scanner.ScanAccount(context.Background(), acct, []model.Rule{excludeSpamRule()}, nil, nil, &Flag{}, nil)
	if err != nil {
		t.Fatalf("ScanAccount: %v", err)
	}
	if result.EmailsProcessed != 1 {
		t.Errorf("emails processed = %d, want 1", result.EmailsProcessed)
	}
	if st.invoiceCount() != 0 || st.linkCount() != 0 {
		t.Errorf("excluded message produced records: invoices=%d links=%d", st.invoiceCount(), st.linkCount())
	}
}

func TestCandidatePositions(t *testing.T) {
	got := candidatePositions([]uint32{9, 3, 7, 3, 12, 1}, 3)
	want := []uint32{7, 9, 12}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestVendorGuess(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"Acme Billing <billing@acme.com>", "Acme Billing"},
		{`"Acme, Inc." <billing@acme.com>`, "Acme, Inc."},
		{"billing@stripe.com", "Stripe"},
		{"<billing@stripe.com>", "Stripe"},
		{"no-domain-here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := vendorGuess(tt.from); got != tt.want {
			t.Errorf("vendorGuess(%q) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

// Package model defines core data types shared across the application.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a UUIDv7 (time-ordered) identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails (should never happen).
		return uuid.New().String()
	}
	return id.String()
}

// AccountStatus reflects the outcome of the most recent scan attempt.
type AccountStatus string

const (
	AccountStatusConnected AccountStatus = "connected"
	AccountStatusError     AccountStatus = "error"
)

// Account represents a single mailbox to scan for invoices.
type Account struct {
	ID       string `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	Host     string `json:"host" db:"host"`
	Port     int    `json:"port" db:"port"`
	SSL      bool   `json:"ssl" db:"ssl"`
	Password string `json:"-" db:"password"` // never exposed via JSON

	// LastUID is the highest mailbox position already processed.
	// Monotonically non-decreasing; advanced only by the scanner.
	LastUID     uint32        `json:"last_uid" db:"last_uid"`
	Status      AccountStatus `json:"status" db:"status"`
	StatusError string        `json:"status_error,omitempty" db:"status_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RuleCondition identifies which message field a rule matches and how.
type RuleCondition string

const (
	RuleSenderContains  RuleCondition = "sender_contains"
	RuleSenderEquals    RuleCondition = "sender_equals"
	RuleSubjectContains RuleCondition = "subject_contains"
	RuleSubjectEquals   RuleCondition = "subject_equals"
	RuleDomainEquals    RuleCondition = "domain_equals"
)

// Rule is an exclusion rule evaluated against message headers.
// Rules are loaded once per sync run and immutable for its duration.
type Rule struct {
	ID             string        `json:"id" db:"id"`
	Type           string        `json:"type" db:"type"` // only "exclude" is defined
	ConditionType  RuleCondition `json:"condition_type" db:"condition_type"`
	ConditionValue string        `json:"condition_value" db:"condition_value"`
	Active         bool          `json:"active" db:"active"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Attachment is a PDF attachment extracted from a message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// InvoiceLink is a candidate invoice-download URL found in a message body.
type InvoiceLink struct {
	URL    string
	Amount string // "" when no nearby amount was found
}

// Invoice is one retained PDF attachment persisted as an invoice record.
// Unique on (account_id, message_id, filename).
type Invoice struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	Filename   string    `json:"filename" db:"filename"`
	StoredPath string    `json:"stored_path" db:"stored_path"`
	Size       int64     `json:"size" db:"size"`
	Subject    string    `json:"subject" db:"subject"`
	From       string    `json:"from" db:"from_addr"`
	Date       time.Time `json:"date" db:"date"`
	MessageID  string    `json:"message_id" db:"message_id"`
	Vendor     string    `json:"vendor" db:"vendor"`
	Amount     string    `json:"amount,omitempty" db:"amount"`
	Tags       string    `json:"tags,omitempty" db:"tags"`
	SourceType string    `json:"source_type" db:"source_type"` // "attachment"
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PendingLink is a detected invoice URL queued for manual follow-up.
// Best-effort unique on (account_id, url); storage duplicates are swallowed.
type PendingLink struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	URL       string    `json:"url" db:"url"`
	Amount    string    `json:"amount,omitempty" db:"amount"`
	Subject   string    `json:"subject" db:"subject"`
	From      string    `json:"from" db:"from_addr"`
	Date      time.Time `json:"date" db:"date"`
	MessageID string    `json:"message_id" db:"message_id"`
	Status    string    `json:"status" db:"status"` // "pending"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SyncStatus represents the state of a sync run.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusCancelled SyncStatus = "cancelled"
	SyncStatusFailed    SyncStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusCancelled || s == SyncStatusFailed
}

// SyncRun tracks one orchestration invocation across a set of accounts.
// Mutated by the orchestrator only; scanners report counts back to it.
type SyncRun struct {
	ID                  string     `json:"id" db:"id"`
	Status              SyncStatus `json:"status" db:"status"`
	StartedAt           time.Time  `json:"started_at" db:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	TotalAccounts       int        `json:"total_accounts" db:"total_accounts"`
	ProcessedAccounts   int        `json:"processed_accounts" db:"processed_accounts"`
	TotalInvoices       int        `json:"total_invoices" db:"total_invoices"`
	TotalEmails         int        `json:"total_emails_to_process" db:"total_emails"`
	EmailsProcessed     int        `json:"emails_processed_so_far" db:"emails_processed"`
	CurrentAccountEmail string     `json:"current_account_email,omitempty" db:"current_account_email"`
	Message             string     `json:"message,omitempty" db:"message"`
	ErrorMessage        string     `json:"error_message,omitempty" db:"error_message"`
	DateFrom            *time.Time `json:"date_from,omitempty" db:"date_from"`
	DateTo              *time.Time `json:"date_to,omitempty" db:"date_to"`
}

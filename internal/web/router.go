// Package web provides the HTTP router and handlers for the invoice scanner.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailsift/invoicesync/internal/store"
	"github.com/mailsift/invoicesync/internal/sync"
)

// Config holds dependencies for the web layer.
type Config struct {
	Store *store.Store
	Sync  *sync.Service
}

// NewRouter creates the chi router with all routes.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", handleHealth())

	// Sync API.
	r.Post("/api/sync", handleStartSync(cfg.Sync))
	r.Get("/api/sync", handleListSyncRuns(cfg.Store))
	r.Get("/api/sync/{id}", handleSyncStatus(cfg.Sync))
	r.Post("/api/sync/{id}/cancel", handleSyncCancel(cfg.Sync))

	// Account API.
	r.Get("/api/accounts", handleListAccounts(cfg.Store))
	r.Post("/api/accounts", handleCreateAccount(cfg.Store))
	r.Delete("/api/accounts/{id}", handleDeleteAccount(cfg.Store))

	// Rule API.
	r.Get("/api/rules", handleListRules(cfg.Store))
	r.Post("/api/rules", handleCreateRule(cfg.Store))
	r.Delete("/api/rules/{id}", handleDeleteRule(cfg.Store))

	// Result API.
	r.Get("/api/invoices", handleListInvoices(cfg.Store))
	r.Get("/api/pending-links", handleListPendingLinks(cfg.Store))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

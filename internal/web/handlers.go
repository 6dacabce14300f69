package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailsift/invoicesync/internal/model"
	"github.com/mailsift/invoicesync/internal/store"
	"github.com/mailsift/invoicesync/internal/sync"
)

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleStartSync kicks off a background sync run and returns its ID. The
// response carries no scan results; callers poll the run status instead.
func handleStartSync(svc *sync.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sync.Request
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		runID, err := svc.StartSync(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, sync.ErrNoAccounts):
				writeError(w, http.StatusBadRequest, "no accounts to sync")
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "account not found")
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

func handleSyncStatus(svc *sync.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleSyncCancel(svc *sync.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cancelled := svc.Cancel(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

func handleListSyncRuns(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListSyncRuns(r.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleListAccounts(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := st.ListAccounts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func handleCreateAccount(st *store.Store) http.HandlerFunc {
	type createAccountRequest struct {
		Email    string `json:"email"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		SSL      *bool  `json:"ssl"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Host == "" {
			writeError(w, http.StatusBadRequest, "email and host are required")
			return
		}
		if req.Port == 0 {
			req.Port = 993
		}
		ssl := true
		if req.SSL != nil {
			ssl = *req.SSL
		}

		acct := &model.Account{
			Email:    req.Email,
			Host:     req.Host,
			Port:     req.Port,
			SSL:      ssl,
			Password: req.Password,
		}
		if err := st.CreateAccount(r.Context(), acct); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, acct)
	}
}

func handleDeleteAccount(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "account not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListRules(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := st.ListRules(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

func handleCreateRule(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule model.Rule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !validCondition(rule.ConditionType) || rule.ConditionValue == "" {
			writeError(w, http.StatusBadRequest, "invalid rule condition")
			return
		}
		rule.Type = "exclude"
		rule.Active = true
		if err := st.CreateRule(r.Context(), &rule); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

func handleDeleteRule(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "rule not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListInvoices(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoices, err := st.ListInvoices(r.Context(), r.URL.Query().Get("account_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, invoices)
	}
}

func handleListPendingLinks(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := st.ListPendingLinks(r.Context(), r.URL.Query().Get("account_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, links)
	}
}

func validCondition(c model.RuleCondition) bool {
	switch c {
	case model.RuleSenderContains, model.RuleSenderEquals,
		model.RuleSubjectContains, model.RuleSubjectEquals, model.RuleDomainEquals:
		return true
	}
	return false
}

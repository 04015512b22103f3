package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mapmates-ledger/internal/api/types"
	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/service"
	"mapmates-ledger/internal/util"
)

// DefaultTimeout bounds request handling in the router's timeout middleware.
const DefaultTimeout = 15 * time.Second

// Pagination bounds for history and leaderboard reads.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// idempotencyHeader carries the optional caller-supplied dedupe key.
const idempotencyHeader = "Idempotency-Key"

// LedgerHandler handles HTTP requests for ledger operations.
type LedgerHandler struct {
	service service.LedgerService
	logger  *slog.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: svc,
		logger:  logger,
	}
}

// Helper function to send JSON responses.
func (h *LedgerHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *LedgerHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidAmount),
		util.IsError(err, util.ErrInvalidReason),
		util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case util.IsError(err, util.ErrAccountNotFound), util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "Account not found"
	case util.IsError(err, util.ErrInsufficientFunds):
		statusCode = http.StatusPaymentRequired // 402 Payment Required
		message = "Insufficient mapos"
	case util.IsError(err, util.ErrDuplicateAccount):
		statusCode = http.StatusConflict
		message = "Account already exists"
	case util.IsError(err, util.ErrDuplicateEntry):
		statusCode = http.StatusConflict
		message = "Idempotency key already used"
	case util.IsError(err, util.ErrStorageUnavailable):
		statusCode = http.StatusServiceUnavailable
		message = "Storage unavailable, retry later"
		h.logger.Error("Storage failure", "error", err)
	case util.IsError(err, util.ErrCorruptRecord):
		h.logger.Error("Corrupt ledger record", "error", err)
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// idempotencyKey extracts and validates the Idempotency-Key header.
// An absent header is fine; a malformed one is rejected.
func idempotencyKey(r *http.Request) (string, error) {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		return "", nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return "", util.ErrInvalidInput
	}
	return key, nil
}

// CreateAccountRequest represents the request body for account creation.
type CreateAccountRequest struct {
	UserID string `json:"user_id"`
}

// CreateAccount handles account provisioning.
// POST /accounts
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.UserID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	account, entry, err := h.service.CreateAccount(r.Context(), req.UserID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message":       "Account created",
		"account":       account,
		"welcome_entry": entry,
	})
}

// MutationRequest represents the request body for earn and spend.
type MutationRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Earn handles the credit request.
// POST /accounts/{userID}/earn
func (h *LedgerHandler) Earn(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Earn)
}

// Spend handles the debit request.
// POST /accounts/{userID}/spend
func (h *LedgerHandler) Spend(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Spend)
}

func (h *LedgerHandler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID string, amount int64, reason, idemKey string) (int64, *domain.Entry, error),
) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	key, err := idempotencyKey(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	newBalance, entry, err := op(r.Context(), userID, req.Amount, req.Reason, key)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     userID,
		"new_balance": newBalance,
		"entry":       entry,
	})
}

// GetBalance handles the balance read.
// GET /accounts/{userID}/balance
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// GetHistory handles the entry history read.
// GET /accounts/{userID}/history
func (h *LedgerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	limit, offset := pagination(r)

	entries, totalCount, err := h.service.GetHistory(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Entry]{
		Data:       entries,
		Limit:      limit,
		Offset:     offset,
		TotalCount: totalCount,
	})
}

// Leaderboard handles the top-balances read.
// GET /leaderboard
func (h *LedgerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)

	accounts, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"limit":    limit,
	})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= maxPageSize {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

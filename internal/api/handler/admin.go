package handler

import (
	"encoding/json"
	"net/http"

	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/util"
)

// BroadcastRequest represents the request body for a global reward.
// Amount and Reason default to the values the admin console has always sent.
type BroadcastRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// BroadcastEarn handles the admin global reward.
// POST /admin/rewards/broadcast
func (h *LedgerHandler) BroadcastEarn(w http.ResponseWriter, r *http.Request) {
	req := BroadcastRequest{
		Amount: domain.GlobalReward,
		Reason: "Global reward from admin",
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, util.ErrInvalidInput)
			return
		}
	}

	result, err := h.service.BroadcastEarn(r.Context(), req.Amount, req.Reason)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.logger.Info("Global reward broadcast",
		"amount", req.Amount,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", len(result.Failures))

	h.respondWithJSON(w, http.StatusOK, result)
}

// Stats handles the admin dashboard totals read.
// GET /admin/stats
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, stats)
}

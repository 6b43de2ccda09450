package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/models"
)

// TransactionLister reads persisted transactions.
type TransactionLister interface {
	List(ctx context.Context, limit int) ([]models.Transaction, error)
	ListByStation(ctx context.Context, stationID string, limit int) ([]models.Transaction, error)
}

// MessageLister reads the message log.
type MessageLister interface {
	ListByStation(ctx context.Context, stationID string, limit int) ([]models.OCPPMessage, error)
}

// TransactionsHandlers serves transaction history.
type TransactionsHandlers struct {
	repo   TransactionLister
	logger *zap.Logger
}

// NewTransactionsHandlers returns handler.
func NewTransactionsHandlers(repo TransactionLister, logger *zap.Logger) *TransactionsHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionsHandlers{repo: repo, logger: logger}
}

// List handles GET /transactions.
func (h *TransactionsHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list transactions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListByStation handles GET /transactions/{stationID}.
func (h *TransactionsHandlers) ListByStation(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := h.repo.ListByStation(r.Context(), stationID, limit)
	if err != nil {
		h.logger.Error("list station transactions failed", logging.StationID(stationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// MessagesHandlers serves the OCPP message log.
type MessagesHandlers struct {
	repo   MessageLister
	logger *zap.Logger
}

// NewMessagesHandlers returns handler.
func NewMessagesHandlers(repo MessageLister, logger *zap.Logger) *MessagesHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagesHandlers{repo: repo, logger: logger}
}

type messagesResponse struct {
	StationID string               `json:"stationId"`
	Messages  []models.OCPPMessage `json:"messages"`
	Count     int                  `json:"count"`
}

// ListByStation handles GET /messages/{stationID}.
func (h *MessagesHandlers) ListByStation(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 100
	}
	msgs, err := h.repo.ListByStation(r.Context(), stationID, limit)
	if err != nil {
		h.logger.Error("list messages failed", logging.StationID(stationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{StationID: stationID, Messages: msgs, Count: len(msgs)})
}

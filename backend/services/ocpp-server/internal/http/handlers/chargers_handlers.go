package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/http/middleware"
	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/station"
)

// StationLister reads persisted stations.
type StationLister interface {
	List(ctx context.Context) ([]models.Station, error)
}

// LiveStations exposes the connected sessions.
type LiveStations interface {
	Snapshot() []station.Summary
}

// Commander issues remote commands to connected stations.
type Commander interface {
	RemoteStart(ctx context.Context, stationID, idTag string, connectorID *int) (string, error)
	RemoteStop(ctx context.Context, stationID string, transactionID int64) (string, error)
	ChangeConfiguration(ctx context.Context, stationID, key, value string) (string, error)
}

// ChargersHandlers serves station listing and remote control.
type ChargersHandlers struct {
	stations  StationLister
	live      LiveStations
	commander Commander
	logger    *zap.Logger
}

// NewChargersHandlers returns handler.
func NewChargersHandlers(stations StationLister, live LiveStations, commander Commander, logger *zap.Logger) *ChargersHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChargersHandlers{stations: stations, live: live, commander: commander, logger: logger}
}

type remoteStartRequest struct {
	IDTag       string `json:"idTag"`
	ConnectorID *int   `json:"connectorId,omitempty"`
}

type remoteStopRequest struct {
	TransactionID int64 `json:"transactionId"`
}

type configureRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type commandResponse struct {
	StationID string `json:"stationId"`
	Action    string `json:"action"`
	Status    string `json:"status"`
}

type activeResponse struct {
	ActiveChargers []string          `json:"activeChargers"`
	Count          int               `json:"count"`
	Chargers       []station.Summary `json:"chargers"`
}

// List handles GET /chargers.
func (h *ChargersHandlers) List(w http.ResponseWriter, r *http.Request) {
	stations, err := h.stations.List(r.Context())
	if err != nil {
		h.logger.Error("list stations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list chargers")
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

// Active handles GET /chargers/active.
func (h *ChargersHandlers) Active(w http.ResponseWriter, r *http.Request) {
	summaries := h.live.Snapshot()
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.StationID)
	}
	writeJSON(w, http.StatusOK, activeResponse{ActiveChargers: ids, Count: len(ids), Chargers: summaries})
}

// Start handles POST /chargers/{stationID}/start.
func (h *ChargersHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req remoteStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDTag) == "" {
		writeError(w, http.StatusBadRequest, "idTag is required")
		return
	}
	h.command(w, r, "RemoteStartTransaction", func(ctx context.Context, id string) (string, error) {
		return h.commander.RemoteStart(ctx, id, req.IDTag, req.ConnectorID)
	})
}

// Stop handles POST /chargers/{stationID}/stop.
func (h *ChargersHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	var req remoteStopRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID <= 0 {
		writeError(w, http.StatusBadRequest, "transactionId is required")
		return
	}
	h.command(w, r, "RemoteStopTransaction", func(ctx context.Context, id string) (string, error) {
		return h.commander.RemoteStop(ctx, id, req.TransactionID)
	})
}

// Configure handles POST /chargers/{stationID}/configure.
func (h *ChargersHandlers) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	h.command(w, r, "ChangeConfiguration", func(ctx context.Context, id string) (string, error) {
		return h.commander.ChangeConfiguration(ctx, id, req.Key, req.Value)
	})
}

func (h *ChargersHandlers) command(w http.ResponseWriter, r *http.Request, action string, run func(ctx context.Context, stationID string) (string, error)) {
	stationID := chi.URLParam(r, "stationID")
	operator, _ := middleware.OperatorFromContext(r.Context())

	status, err := run(r.Context(), stationID)
	if err != nil {
		h.logger.Warn("remote command failed",
			logging.StationID(stationID),
			logging.Action(action),
			zap.String("operator", operator),
			zap.Error(err),
		)
		writeError(w, commandStatus(err), err.Error())
		return
	}

	h.logger.Info("remote command sent",
		logging.StationID(stationID),
		logging.Action(action),
		zap.String("operator", operator),
		zap.String("status", status),
	)
	writeJSON(w, http.StatusOK, commandResponse{StationID: stationID, Action: action, Status: status})
}

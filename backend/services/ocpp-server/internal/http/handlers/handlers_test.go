package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcharge/backend/services/ocpp-server/internal/models"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/station"
)

type fakeCommander struct {
	err       error
	status    string
	gotID     string
	gotTag    string
	gotConn   *int
	gotTx     int64
	gotKey    string
	gotValue  string
	callCount int
}

func (f *fakeCommander) RemoteStart(_ context.Context, id, tag string, conn *int) (string, error) {
	f.callCount++
	f.gotID, f.gotTag, f.gotConn = id, tag, conn
	return f.status, f.err
}

func (f *fakeCommander) RemoteStop(_ context.Context, id string, tx int64) (string, error) {
	f.callCount++
	f.gotID, f.gotTx = id, tx
	return f.status, f.err
}

func (f *fakeCommander) ChangeConfiguration(_ context.Context, id, key, value string) (string, error) {
	f.callCount++
	f.gotID, f.gotKey, f.gotValue = id, key, value
	return f.status, f.err
}

type fakeLive []station.Summary

func (f fakeLive) Snapshot() []station.Summary { return f }

type fakeRepo struct {
	err      error
	stations []models.Station
	txs      []models.Transaction
	msgs     []models.OCPPMessage
	gotID    string
	gotLimit int
}

func (f *fakeRepo) List(context.Context) ([]models.Station, error) { return f.stations, f.err }

type fakeTxRepo struct{ *fakeRepo }

func (f fakeTxRepo) List(_ context.Context, limit int) ([]models.Transaction, error) {
	f.gotLimit = limit
	return f.txs, f.err
}

func (f fakeTxRepo) ListByStation(_ context.Context, id string, limit int) ([]models.Transaction, error) {
	f.gotID, f.gotLimit = id, limit
	return f.txs, f.err
}

type fakeMsgRepo struct{ *fakeRepo }

func (f fakeMsgRepo) ListByStation(_ context.Context, id string, limit int) ([]models.OCPPMessage, error) {
	f.gotID, f.gotLimit = id, limit
	return f.msgs, f.err
}

func chargersRouter(h *ChargersHandlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/chargers", h.List)
	r.Get("/chargers/active", h.Active)
	r.Post("/chargers/{stationID}/start", h.Start)
	r.Post("/chargers/{stationID}/stop", h.Stop)
	r.Post("/chargers/{stationID}/configure", h.Configure)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRemoteCommands(t *testing.T) {
	cmd := &fakeCommander{status: "Accepted"}
	h := chargersRouter(NewChargersHandlers(&fakeRepo{}, fakeLive{}, cmd, nil))

	rec := do(t, h, http.MethodPost, "/chargers/CP-1/start", `{"idTag":"TAG","connectorId":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stationId":"CP-1","action":"RemoteStartTransaction","status":"Accepted"}`, rec.Body.String())
	assert.Equal(t, "TAG", cmd.gotTag)
	require.NotNil(t, cmd.gotConn)
	assert.Equal(t, 2, *cmd.gotConn)

	rec = do(t, h, http.MethodPost, "/chargers/CP-1/stop", `{"transactionId":17}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(17), cmd.gotTx)

	rec = do(t, h, http.MethodPost, "/chargers/CP-1/configure", `{"key":"HeartbeatInterval","value":"60"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HeartbeatInterval", cmd.gotKey)
	assert.Equal(t, "60", cmd.gotValue)
}

func TestRemoteCommandValidation(t *testing.T) {
	cmd := &fakeCommander{status: "Accepted"}
	h := chargersRouter(NewChargersHandlers(&fakeRepo{}, fakeLive{}, cmd, nil))

	for _, tc := range []struct{ path, body string }{
		{"/chargers/CP-1/start", `{}`},
		{"/chargers/CP-1/start", `not json`},
		{"/chargers/CP-1/stop", `{"transactionId":0}`},
		{"/chargers/CP-1/configure", `{"value":"1"}`},
		{"/chargers/CP-1/configure", `{"key":"a","extra":true}`},
	} {
		rec := do(t, h, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s %s", tc.path, tc.body)
	}
	assert.Zero(t, cmd.callCount)
}

func TestRemoteCommandErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ocpp.NewError(ocpp.ErrorCodeNotConnected, "station CP-1 is not connected"), http.StatusNotFound},
		{ocpp.ErrTimeout, http.StatusGatewayTimeout},
		{ocpp.ErrDisconnected, http.StatusBadGateway},
		{ocpp.NewError("GenericError", "busy"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		cmd := &fakeCommander{err: tc.err}
		h := chargersRouter(NewChargersHandlers(&fakeRepo{}, fakeLive{}, cmd, nil))
		rec := do(t, h, http.MethodPost, "/chargers/CP-1/stop", `{"transactionId":5}`)
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestChargersListAndActive(t *testing.T) {
	repo := &fakeRepo{stations: []models.Station{{ID: "CP-1", Name: "Acme X1", Online: true}}}
	live := fakeLive{{StationID: "CP-1", Online: true}, {StationID: "CP-2", Online: true}}
	h := chargersRouter(NewChargersHandlers(repo, live, &fakeCommander{}, nil))

	rec := do(t, h, http.MethodGet, "/chargers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stations []models.Station
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "Acme X1", stations[0].Name)

	rec = do(t, h, http.MethodGet, "/chargers/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active activeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Equal(t, []string{"CP-1", "CP-2"}, active.ActiveChargers)
	assert.Equal(t, 2, active.Count)

	repo.err = errors.New("db down")
	rec = do(t, h, http.MethodGet, "/chargers", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTransactionsAndMessages(t *testing.T) {
	repo := &fakeRepo{
		txs:  []models.Transaction{{ID: 7, StationID: "CP-1", Status: "completed"}},
		msgs: []models.OCPPMessage{{ID: 1, StationID: "CP-1", Action: "Heartbeat"}},
	}
	tx := NewTransactionsHandlers(fakeTxRepo{repo}, nil)
	msg := NewMessagesHandlers(fakeMsgRepo{repo}, nil)

	r := chi.NewRouter()
	r.Get("/transactions", tx.List)
	r.Get("/transactions/{stationID}", tx.ListByStation)
	r.Get("/messages/{stationID}", msg.ListByStation)

	rec := do(t, r, http.MethodGet, "/transactions?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, repo.gotLimit)

	rec = do(t, r, http.MethodGet, "/transactions/CP-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CP-1", repo.gotID)
	assert.Equal(t, 0, repo.gotLimit)

	rec = do(t, r, http.MethodGet, "/transactions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodGet, "/messages/CP-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, repo.gotLimit)
	var out messagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "CP-1", out.StationID)
	assert.Equal(t, 1, out.Count)
}

func TestHealth(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	bad := PingFunc(func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"database": ok}, func() int { return 3 })(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","services":{"database":"healthy"},"sessions":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"database": ok, "redis": bad}, nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unhealthy"`)
}

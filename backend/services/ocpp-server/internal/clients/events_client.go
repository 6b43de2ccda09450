package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transaction event names.
const (
	EventTransactionStarted   = "transaction.started"
	EventTransactionCompleted = "transaction.completed"
)

// TransactionEvent is posted to the events endpoint when a transaction starts or ends.
type TransactionEvent struct {
	Event           string     `json:"event"`
	TransactionID   int64      `json:"transaction_id"`
	StationID       string     `json:"station_id"`
	ConnectorID     int        `json:"connector_id"`
	IDTag           string     `json:"id_tag,omitempty"`
	MeterStart      int64      `json:"meter_start"`
	MeterStop       *int64     `json:"meter_stop,omitempty"`
	EnergyDelivered int64      `json:"energy_delivered"`
	Reason          string     `json:"reason,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
}

// EventsClient notifies a downstream service (billing, sessions) about transaction
// lifecycle events. An empty base URL disables it.
type EventsClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewEventsClient builds HTTP client wrapper.
func NewEventsClient(baseURL string, timeout time.Duration, logger *zap.Logger) *EventsClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Enabled reports whether a base URL is configured.
func (c *EventsClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// NotifyTransaction posts ev (best-effort).
func (c *EventsClient) NotifyTransaction(ctx context.Context, ev TransactionEvent) error {
	if !c.Enabled() {
		return nil
	}
	return c.post(ctx, "/internal/ocpp/transactions", ev)
}

func (c *EventsClient) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("events client request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("events client returned non-success", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("events endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

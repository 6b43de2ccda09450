package models

import "time"

// Station represents a provisioned charging station.
type Station struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Vendor          string     `db:"vendor" json:"vendor"`
	Model           string     `db:"model" json:"model"`
	SerialNumber    string     `db:"serial_number" json:"serialNumber,omitempty"`
	FirmwareVersion string     `db:"firmware_version" json:"firmwareVersion,omitempty"`
	Online          bool       `db:"is_online" json:"online"`
	LastHeartbeat   *time.Time `db:"last_heartbeat" json:"lastHeartbeat,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// ConnectorStatus is the persisted last status of a connector. Connector 0 is the
// station itself.
type ConnectorStatus struct {
	StationID   string    `db:"station_id" json:"stationId"`
	ConnectorID int       `db:"connector_id" json:"connectorId"`
	Status      string    `db:"status" json:"status"`
	ErrorCode   string    `db:"error_code" json:"errorCode"`
	Info        string    `db:"info" json:"info,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Transaction is a persisted charging transaction.
type Transaction struct {
	ID              int64      `db:"id" json:"transactionId"`
	StationID       string     `db:"station_id" json:"stationId"`
	ConnectorID     int        `db:"connector_id" json:"connectorId"`
	IDTag           string     `db:"id_tag" json:"idTag"`
	MeterStart      int64      `db:"meter_start" json:"meterStart"`
	MeterStop       *int64     `db:"meter_stop" json:"meterStop,omitempty"`
	EnergyDelivered int64      `db:"energy_delivered" json:"energyDelivered"`
	Status          string     `db:"status" json:"status"`
	StopReason      string     `db:"stop_reason" json:"stopReason,omitempty"`
	StartTime       time.Time  `db:"start_time" json:"startTime"`
	EndTime         *time.Time `db:"end_time" json:"endTime,omitempty"`
}

// OCPPMessage is one logged frame.
type OCPPMessage struct {
	ID          int64     `db:"id" json:"id"`
	StationID   string    `db:"station_id" json:"stationId"`
	Direction   string    `db:"direction" json:"direction"`
	MessageType string    `db:"message_type" json:"messageType"`
	Action      string    `db:"action" json:"action"`
	MessageID   string    `db:"message_id" json:"messageId"`
	Payload     string    `db:"payload" json:"payload"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

package protocol

// MessageType values as per OCPP-J.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Subprotocol negotiated on the websocket handshake.
const Subprotocol = "ocpp1.6"

// Actions initiated by the charge point.
const (
	ActionAuthorize          = "Authorize"
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionMeterValues        = "MeterValues"
	ActionStartTransaction   = "StartTransaction"
	ActionStatusNotification = "StatusNotification"
	ActionStopTransaction    = "StopTransaction"
)

// Actions initiated by the central system.
const (
	ActionChangeConfiguration    = "ChangeConfiguration"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
)

// InboundActions lists every charge point initiated action this server understands.
// The dispatcher table must contain exactly one handler for each.
var InboundActions = []string{
	ActionAuthorize,
	ActionBootNotification,
	ActionHeartbeat,
	ActionMeterValues,
	ActionStartTransaction,
	ActionStatusNotification,
	ActionStopTransaction,
}

// IsInbound reports whether action is a known charge point initiated action.
func IsInbound(action string) bool {
	for _, a := range InboundActions {
		if a == action {
			return true
		}
	}
	return false
}

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationPending  = "Pending"
	RegistrationRejected = "Rejected"
)

// Authorization status values.
const (
	AuthorizationAccepted = "Accepted"
	AuthorizationBlocked  = "Blocked"
	AuthorizationExpired  = "Expired"
	AuthorizationInvalid  = "Invalid"
)

// StatusNotification status values.
const (
	ConnectorAvailable     = "Available"
	ConnectorPreparing     = "Preparing"
	ConnectorCharging      = "Charging"
	ConnectorSuspendedEVSE = "SuspendedEVSE"
	ConnectorSuspendedEV   = "SuspendedEV"
	ConnectorFinishing     = "Finishing"
	ConnectorReserved      = "Reserved"
	ConnectorUnavailable   = "Unavailable"
	ConnectorFaulted       = "Faulted"
)

// ErrorNone is the errorCode a healthy connector reports.
const ErrorNone = "NoError"

// Remote command status values.
const (
	RemoteAccepted = "Accepted"
	RemoteRejected = "Rejected"

	ConfigurationAccepted       = "Accepted"
	ConfigurationRejected       = "Rejected"
	ConfigurationRebootRequired = "RebootRequired"
	ConfigurationNotSupported   = "NotSupported"
)

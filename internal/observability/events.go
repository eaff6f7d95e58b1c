package observability

// Routing keys for websocket lifecycle and message events.
const (
	RoutingKeyWSEvents   = "ws_events.exchanges"
	RoutingKeyChatEvents = "chat_events.exchanges"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEventPayload describes one websocket lifecycle event for auditing.
type WSEventPayload struct {
	ExchangeID int    `json:"exchange_id"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	UserID     int    `json:"user_id"`
	DeviceID   string `json:"device_id"`
	IP         string `json:"ip"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

package ws

import "time"

// ConnInfo carries identity and tracing context for one websocket connection.
type ConnInfo struct {
	SessionID   string
	UserID      int
	ExchangeID  int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

package sdk

import "time"

// Security states reported by the backend
const (
	// StateNormal — full trust, no restrictions
	StateNormal = "NORMAL"

	// StateWatch — trust dipping, verification cadence unchanged
	StateWatch = "WATCH"

	// StateRestrict — sensitive operations should be blocked
	StateRestrict = "RESTRICT"

	// StateReauth — session locked until explicit re-authentication
	StateReauth = "REAUTH"
)

// TrustState is the smoothed trust score for a session.
type TrustState struct {
	EMAValue    float64 `json:"ema_value"`
	LastInstant float64 `json:"last_instant"`
	TickCount   uint64  `json:"tick_count"`
}

// SessionSnapshot is the live view of one verification session.
type SessionSnapshot struct {
	SessionID     string     `json:"session_id"`
	TrustState    TrustState `json:"trust_state"`
	State         string     `json:"state"`
	DegradedTicks int        `json:"degraded_ticks"`
}

// Transition is one enforcement state change.
type Transition struct {
	SessionID string    `json:"session_id"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	At        time.Time `json:"at"`
	EMAValue  float64   `json:"ema_value"`
}

// SessionDetail is the full GET /sessions/{id} response.
type SessionDetail struct {
	Session SessionSnapshot `json:"session"`
	History []Transition    `json:"history"`
}

// LeaseRecord describes one held capture resource.
type LeaseRecord struct {
	Resource   string    `json:"resource"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Event is the envelope delivered on the /ws/events stream.
type Event struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Time      time.Time   `json:"time"`
	Data      interface{} `json:"data"`
}

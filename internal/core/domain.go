package core

import "time"

// SignalKind identifies one biometric confidence channel.
type SignalKind string

const (
	SignalFace     SignalKind = "face"
	SignalLiveness SignalKind = "liveness"
	SignalBehavior SignalKind = "behavior"
)

// SignalKinds lists all channels in weight order.
var SignalKinds = []SignalKind{SignalFace, SignalLiveness, SignalBehavior}

// ResourceID identifies a shared capture resource arbitrated by the lease manager.
type ResourceID string

const (
	ResourceCamera         ResourceID = "camera"
	ResourceBehaviorSource ResourceID = "behavior_source"
)

// ScoreSample is one tick's worth of raw confidence values. A nil field
// means the signal was unavailable this tick; the aggregator substitutes
// the configured fallback, never a fabricated score.
type ScoreSample struct {
	Face       *float64  `json:"face,omitempty"`
	Liveness   *float64  `json:"liveness,omitempty"`
	Behavior   *float64  `json:"behavior,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Available reports whether at least one signal produced a value.
func (s ScoreSample) Available() bool {
	return s.Face != nil || s.Liveness != nil || s.Behavior != nil
}

// TrustState is the smoothed trust value for one verification session.
// Owned by the aggregator; updated once per tick.
type TrustState struct {
	EMAValue    float64 `json:"ema_value"`
	LastInstant float64 `json:"last_instant"`
	TickCount   uint64  `json:"tick_count"`
}

// NewTrustState returns the starting trust state for a fresh session.
// Trust starts at full confidence; the first ticks pull it toward reality.
func NewTrustState() TrustState {
	return TrustState{EMAValue: 1.0}
}

// SecurityState is the enforcement level derived from the trust score.
// Ordered by restriction severity: Normal < Watch < Restrict < Reauth.
type SecurityState int

const (
	StateNormal SecurityState = iota
	StateWatch
	StateRestrict
	StateReauth
)

func (s SecurityState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWatch:
		return "WATCH"
	case StateRestrict:
		return "RESTRICT"
	case StateReauth:
		return "REAUTH"
	default:
		return "UNKNOWN"
	}
}

// StateTransition is emitted whenever the enforcement state changes.
// Transitions where from == to are suppressed at the source.
type StateTransition struct {
	SessionID string        `json:"session_id"`
	From      SecurityState `json:"from"`
	To        SecurityState `json:"to"`
	At        time.Time     `json:"at"`
	EMAValue  float64       `json:"ema_value"`
}

// DegradedSignal warns that every provider has been unavailable for
// ConsecutiveTicks ticks. Informational — the session keeps running.
type DegradedSignal struct {
	SessionID        string    `json:"session_id"`
	ConsecutiveTicks int       `json:"consecutive_ticks"`
	At               time.Time `json:"at"`
}

// Clamp restricts v to [0,1]. Out-of-range upstream samples are clamped
// rather than rejected so one bad reading cannot kill a long session.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Float64Ptr is a small helper for building samples.
func Float64Ptr(v float64) *float64 { return &v }

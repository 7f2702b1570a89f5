// Package enforcement maps the smoothed trust score to an enforcement
// state with hysteresis, so the UI layer never sees boundary chatter.
package enforcement

import (
	"sync"
	"time"

	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
)

// StateMachine owns the SecurityState for one verification session.
//
// Downward transitions (toward more restriction) fire as soon as the
// score crosses the bare threshold. Upward transitions require the score
// to clear the threshold plus the configured hysteresis margin. REAUTH
// is sticky: no score recovery leaves it, only ConfirmReauthentication.
type StateMachine struct {
	mu sync.RWMutex

	sessionID  string
	state      core.SecurityState
	thresholds config.StateThresholds
	margin     float64

	// Transition history for debugging and the session snapshot API.
	history []core.StateTransition
}

// New creates a state machine starting in NORMAL.
func New(sessionID string, cfg config.VerificationConfig) *StateMachine {
	return &StateMachine{
		sessionID:  sessionID,
		state:      core.StateNormal,
		thresholds: cfg.Thresholds,
		margin:     cfg.HysteresisMargin,
	}
}

// Evaluate folds one smoothed score into the machine. Returns the
// transition event when the state changed, nil otherwise (from == to is
// suppressed here, at the source).
func (sm *StateMachine) Evaluate(emaValue float64) *core.StateTransition {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	next := sm.nextState(emaValue)
	if next == sm.state {
		return nil
	}
	return sm.transitionLocked(next, emaValue)
}

// ConfirmReauthentication is the explicit, externally authenticated act
// that exits REAUTH. Returns the transition back to NORMAL, or nil when
// the machine was not in REAUTH (the confirmation is then meaningless).
func (sm *StateMachine) ConfirmReauthentication() *core.StateTransition {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != core.StateReauth {
		return nil
	}
	// The caller resets TrustState to 1.0 alongside this transition.
	return sm.transitionLocked(core.StateNormal, 1.0)
}

// State returns the current enforcement state.
func (sm *StateMachine) State() core.SecurityState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// History returns a copy of all transitions so far.
func (sm *StateMachine) History() []core.StateTransition {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	history := make([]core.StateTransition, len(sm.history))
	copy(history, sm.history)
	return history
}

func (sm *StateMachine) transitionLocked(to core.SecurityState, emaValue float64) *core.StateTransition {
	transition := core.StateTransition{
		SessionID: sm.sessionID,
		From:      sm.state,
		To:        to,
		At:        time.Now(),
		EMAValue:  emaValue,
	}
	sm.state = to
	sm.history = append(sm.history, transition)
	return &transition
}

// nextState applies the threshold table with direction-aware hysteresis.
func (sm *StateMachine) nextState(emaValue float64) core.SecurityState {
	if sm.state == core.StateReauth {
		return core.StateReauth
	}

	// Entering a worse state only needs the bare threshold.
	if worse := sm.classify(emaValue, 0); worse > sm.state {
		return worse
	}

	// Climbing back needs threshold + margin to prevent chatter.
	if better := sm.classify(emaValue, sm.margin); better < sm.state {
		return better
	}

	return sm.state
}

func (sm *StateMachine) classify(emaValue, margin float64) core.SecurityState {
	t := sm.thresholds
	switch {
	case emaValue >= t.NormalMin+margin:
		return core.StateNormal
	case emaValue >= t.WatchMin+margin:
		return core.StateWatch
	case emaValue >= t.RestrictMin+margin:
		return core.StateRestrict
	default:
		return core.StateReauth
	}
}

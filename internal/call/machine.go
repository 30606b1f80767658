// Package call implements the call-lifecycle state machine.
//
// The Machine is the single authority that turns raw per-poll signals from
// whichever detector is active (device probe or acoustic) into edge-triggered
// lifecycle events: ringing started, picked up, hung up. Repeated identical
// signals are debounced so each callback fires exactly once per real-world
// transition, no matter how often the underlying detector polls.
package call

import (
	"log/slog"
	"sync"
	"time"
)

// State is a call-lifecycle state as inferred from external signals.
type State int

const (
	// Idle means no call activity.
	Idle State = iota

	// Dialing means an outgoing call has been placed but the far end is not
	// yet alerting.
	Dialing

	// Ringing means the far end is alerting (outgoing ringback) or an
	// incoming call is ringing locally.
	Ringing

	// Active means the call has been answered and audio is flowing.
	Active
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Ringing:
		return "ringing"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Direction distinguishes who initiated the call.
type Direction int

const (
	// Outgoing calls are dialed by this system.
	Outgoing Direction = iota

	// Incoming calls originate from the far end.
	Incoming
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Signal is one point-in-time observation from a detector. Signals are
// immutable once created and are never persisted.
type Signal struct {
	State      State
	Number     string
	Direction  Direction
	ObservedAt time.Time
}

// Snapshot is a consistent read of the machine's current state.
type Snapshot struct {
	State     State
	Number    string
	Direction Direction

	// Epoch increments on every real transition. Consumers use it to reject
	// stale events that raced a later transition.
	Epoch uint64

	// RingCount is the number of ring signals observed since the call left
	// idle. Reset on hangup.
	RingCount int
}

// RingingFunc is invoked once when a call first starts ringing.
type RingingFunc func(number string, direction Direction)

// PickupFunc is invoked once when a call becomes active.
type PickupFunc func(number string)

// HangupFunc is invoked once when a non-idle call returns to idle.
// ringDuration is the time between the first ring and the hangup, zero if the
// call never rang.
type HangupFunc func(number string, ringDuration time.Duration)

// Option configures a Machine.
type Option func(*Machine)

// WithNumberResolver installs a best-effort callback that re-resolves the
// caller number at the pickup edge. Phone stacks often only populate the
// number once a call goes active, so the machine asks again at that moment.
// An empty return keeps the previously cached number.
func WithNumberResolver(fn func() string) Option {
	return func(m *Machine) {
		m.resolveNumber = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// Machine serializes all transition evaluation under one mutex. Callbacks run
// synchronously inside the critical section and must be fast and
// non-blocking; long work belongs in a separate goroutine signaled by the
// callback.
type Machine struct {
	mu            sync.Mutex
	state         State
	number        string
	direction     Direction
	epoch         uint64
	ringCount     int
	ringStart     time.Time
	resolveNumber func() string
	log           *slog.Logger

	onRinging []RingingFunc
	onPickup  []PickupFunc
	onHangup  []HangupFunc
}

// NewMachine creates a Machine in the Idle state.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{log: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// OnRinging registers a callback fired once per entry into Ringing.
func (m *Machine) OnRinging(fn RingingFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRinging = append(m.onRinging, fn)
}

// OnPickup registers a callback fired once per entry into Active.
func (m *Machine) OnPickup(fn PickupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPickup = append(m.onPickup, fn)
}

// OnHangup registers a callback fired once per return to Idle from any
// non-idle state.
func (m *Machine) OnHangup(fn HangupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHangup = append(m.onHangup, fn)
}

// Snapshot returns a consistent copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		Number:    m.number,
		Direction: m.direction,
		Epoch:     m.epoch,
		RingCount: m.ringCount,
	}
}

// Number returns the last-known caller number.
func (m *Machine) Number() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.number
}

// Reset forces the machine back to Idle without firing callbacks. Only used
// at startup, before detectors are running.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	m.number = ""
	m.ringCount = 0
	m.ringStart = time.Time{}
}

// Apply feeds one signal through the transition rules. Same-state signals are
// no-ops (except that a repeated Ringing still increments the ring counter),
// which is what debounces a detector that reports the same observation every
// poll tick.
func (m *Machine) Apply(sig Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig.Number != "" {
		m.number = sig.Number
	}

	if sig.State == m.state {
		if sig.State == Ringing {
			m.ringCount++
		}
		return
	}

	old := m.state
	switch sig.State {
	case Dialing:
		// Only reachable from idle; a ringing or active call never regresses
		// to dialing on a noisy probe read.
		if old != Idle {
			return
		}
		m.transitionLocked(Dialing, sig)

	case Ringing:
		if old == Active {
			// Probes occasionally misread an active call's foreground state
			// for one tick. Hold Active rather than bouncing.
			return
		}
		m.transitionLocked(Ringing, sig)
		m.ringCount = 1
		m.ringStart = sig.ObservedAt
		for _, fn := range m.onRinging {
			fn(m.number, m.direction)
		}

	case Active:
		m.transitionLocked(Active, sig)
		if m.resolveNumber != nil {
			if n := m.resolveNumber(); n != "" {
				m.number = n
			}
		}
		for _, fn := range m.onPickup {
			fn(m.number)
		}

	case Idle:
		m.transitionLocked(Idle, sig)
		var ringDur time.Duration
		if !m.ringStart.IsZero() {
			ringDur = sig.ObservedAt.Sub(m.ringStart)
		}
		number := m.number
		m.number = ""
		m.ringCount = 0
		m.ringStart = time.Time{}
		for _, fn := range m.onHangup {
			fn(number, ringDur)
		}
	}
}

// transitionLocked records the state change and bumps the epoch.
// Caller must hold mu.
func (m *Machine) transitionLocked(to State, sig Signal) {
	from := m.state
	m.state = to
	m.direction = sig.Direction
	m.epoch++
	m.log.Debug("call state transition",
		"from", from.String(),
		"to", to.String(),
		"number", m.number,
		"epoch", m.epoch)
}

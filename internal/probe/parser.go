package probe

import (
	"strings"
	"time"

	"github.com/ringward/ringward/internal/call"
)

// Raw telephony-registry field values. The dump format is externally defined
// and may drift between Android releases; a missing or unrecognized field
// maps to idle.
const (
	rawCallIdle    = "0"
	rawCallRinging = "1"
	rawCallOffhook = "2"

	// mForegroundCallState values while off-hook.
	fgActive   = "1"
	fgAlerting = "4" // far end ringing (ringback)
)

// ParseCallState maps a raw telephony-registry dump to a normalized signal.
//
// Mapping:
//
//	mCallState=0                          → Idle
//	mCallState=1                          → Ringing (incoming)
//	mCallState=2, mForegroundCallState=4  → Ringing (outgoing, far end alerting)
//	mCallState=2, mForegroundCallState=1  → Active
//	mCallState=2, anything else           → Dialing
func ParseCallState(raw string) call.Signal {
	sig := call.Signal{State: call.Idle, Direction: call.Outgoing, ObservedAt: time.Now()}

	callState, ok := scanField(raw, "mCallState")
	if !ok {
		return sig
	}

	switch callState {
	case rawCallIdle:
		sig.State = call.Idle
	case rawCallRinging:
		sig.State = call.Ringing
		sig.Direction = call.Incoming
		sig.Number = parseIncomingNumber(raw)
	case rawCallOffhook:
		fg, _ := scanField(raw, "mForegroundCallState")
		switch fg {
		case fgAlerting:
			sig.State = call.Ringing
		case fgActive:
			sig.State = call.Active
		default:
			sig.State = call.Dialing
		}
	}
	return sig
}

// parseIncomingNumber extracts the best mCallIncomingNumber occurrence from a
// registry dump. The field appears once per SIM slot and is often empty or a
// literal "null" on slots without a call.
func parseIncomingNumber(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		v, ok := fieldValue(line, "mCallIncomingNumber")
		if !ok {
			continue
		}
		if v != "" && v != "null" {
			return v
		}
	}
	return ""
}

// scanField returns the first value of key anywhere in the dump.
func scanField(raw, key string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		if v, ok := fieldValue(line, key); ok {
			return v, true
		}
	}
	return "", false
}

// fieldValue parses "key=value" out of one dump line. The value runs to the
// next whitespace so trailing fields on the same line do not leak in.
func fieldValue(line, key string) (string, bool) {
	idx := strings.Index(line, key+"=")
	if idx < 0 {
		return "", false
	}
	// Reject substring hits like mCallStateExtra when scanning mCallState.
	if idx > 0 {
		prev := line[idx-1]
		if prev != ' ' && prev != '\t' {
			return "", false
		}
	}
	rest := line[idx+len(key)+1:]
	if cut := strings.IndexAny(rest, " \t\r"); cut >= 0 {
		rest = rest[:cut]
	}
	return strings.TrimSpace(rest), true
}

// PlausibleNumber reports whether a side-channel number looks like a real
// phone number rather than a placeholder. Anything five characters or
// shorter is treated as junk.
func PlausibleNumber(n string) bool {
	return len(strings.TrimSpace(n)) > 5
}

// Package callerr defines the error taxonomy shared across the call pipeline.
//
// Callers branch on these sentinels with errors.Is instead of matching error
// strings, so "retry next tick" and "give up" stay distinguishable no matter
// how many wrapping layers a failure passes through.
package callerr

import "errors"

var (
	// ErrTransientProbe marks a device query that failed this tick but is
	// expected to succeed on a later one (tool missing, command timeout).
	// The poller logs it and reports an idle signal until the probe recovers.
	ErrTransientProbe = errors.New("transient probe failure")

	// ErrCaptureMiss marks a capture or transcription failure. It is treated
	// as the absence of an utterance this tick, never as call termination.
	ErrCaptureMiss = errors.New("capture produced no utterance")

	// ErrReplyGeneration marks a reply-generation failure from the
	// conversation service. The orchestrator substitutes a fixed filler
	// phrase and keeps the call alive.
	ErrReplyGeneration = errors.New("reply generation failed")

	// ErrDuplicateCall is returned when a pickup arrives while a call is
	// already being handled. The attempt is rejected without state change.
	ErrDuplicateCall = errors.New("call already in progress")

	// ErrInitFatal marks a startup failure (missing credential, unreachable
	// dependency) that degrades the system to audio-only mode.
	ErrInitFatal = errors.New("fatal initialization failure")
)

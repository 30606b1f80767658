package vad

import "github.com/ringward/ringward/pkg/types"

// VADEvent is the detection result for a single audio frame. Aliased from the
// shared types package so pipeline code can pass events around without
// importing vad.
type VADEvent = types.VADEvent

// VADEventType enumerates VAD detection states.
type VADEventType = types.VADEventType

// Re-exported event types for call-site brevity.
const (
	VADSpeechStart    = types.VADSpeechStart
	VADSpeechContinue = types.VADSpeechContinue
	VADSpeechEnd      = types.VADSpeechEnd
	VADSilence        = types.VADSilence
)

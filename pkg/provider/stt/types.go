package stt

import "github.com/ringward/ringward/pkg/types"

// Transcript is the speech-to-text result type emitted by STT sessions.
// Both partial (interim) and final transcripts use this type.
type Transcript = types.Transcript

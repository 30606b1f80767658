package tts

import "github.com/ringward/ringward/pkg/types"

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile = types.VoiceProfile

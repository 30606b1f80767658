// Package energy implements vad.Engine with an RMS-energy detector.
//
// It needs no model files and no cgo, which makes it the default engine for
// telephony audio: ringtones, speech, and line noise separate well on energy
// alone at 16 kHz, and the acoustic detector layers its own voice-ratio
// window on top. The probability output is smoothed exponentially so single
// hot frames do not flip the speech state.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ringward/ringward/pkg/provider/vad"
)

// referenceEnergy is the RMS value mapped to probability 1.0. Telephony
// speech peaks around this level at 16-bit depth.
const referenceEnergy = 10000.0

// smoothingFactor weights the newest frame in the exponential moving average.
const smoothingFactor = 0.3

// Engine creates energy-based VAD sessions.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

var _ vad.Engine = (*Engine)(nil)

// NewSession validates cfg and returns a ready session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d ms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold must be in [0,1], got %f", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold must be in [0, speech threshold], got %f", cfg.SilenceThreshold)
	}
	return &session{
		cfg:        cfg,
		frameBytes: cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
	}, nil
}

// session holds per-stream smoothing and hysteresis state.
type session struct {
	mu         sync.Mutex
	cfg        vad.Config
	frameBytes int
	smoothed   float64
	seen       bool
	inSpeech   bool
	closed     bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame computes smoothed RMS probability for one frame and classifies
// it with speech/silence hysteresis.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: expected %d-byte frame, got %d", s.frameBytes, len(frame))
	}

	prob := rmsProbability(frame)
	if s.seen {
		prob = smoothingFactor*prob + (1-smoothingFactor)*s.smoothed
	}
	s.smoothed = prob
	s.seen = true

	ev := vad.VADEvent{Probability: prob}
	switch {
	case prob >= s.cfg.SpeechThreshold:
		if s.inSpeech {
			ev.Type = vad.VADSpeechContinue
		} else {
			ev.Type = vad.VADSpeechStart
			s.inSpeech = true
		}
	case prob <= s.cfg.SilenceThreshold:
		if s.inSpeech {
			ev.Type = vad.VADSpeechEnd
			s.inSpeech = false
		} else {
			ev.Type = vad.VADSilence
		}
	default:
		// Between thresholds: hold the current state.
		if s.inSpeech {
			ev.Type = vad.VADSpeechContinue
		} else {
			ev.Type = vad.VADSilence
		}
	}
	return ev, nil
}

// Reset clears smoothing and hysteresis state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothed = 0
	s.seen = false
	s.inSpeech = false
}

// Close marks the session closed. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rmsProbability maps a 16-bit LE PCM frame's RMS energy onto [0,1].
func rmsProbability(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		sum += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(sum / float64(n))
	p := rms / referenceEnergy
	if p > 1 {
		p = 1
	}
	return p
}

// Package acoustic infers call-lifecycle transitions from live audio alone.
//
// Where the device probe reads telephony state directly, this detector works
// from what the line sounds like: ringback has bursts of low-voice-ratio
// energy, a busy tone is a narrow periodic signal, an answered call has
// sustained voice, and a dead line is silence. It exists for deployments
// where no reliable device probe is available; probe and acoustic sources
// drive the same lifecycle machine, never both at once.
//
// Time is tracked in frames rather than wall clock. Every ProcessFrame call
// advances the detector's clock by one frame duration, which keeps the
// confirmation timers deterministic under test and immune to scheduling
// jitter in the capture loop.
package acoustic

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ringward/ringward/pkg/provider/vad"
)

// State is an acoustic classification of the line.
type State int

const (
	// Idle means detection has not started or nothing has been heard yet.
	Idle State = iota

	// Ringing means a ringback or ringtone pattern is playing.
	Ringing

	// Pickup means sustained voice was detected; the far end answered.
	// Latched — once set it never reverts except via Reset.
	Pickup

	// Busy means a narrow periodic tone consistent with a busy signal.
	Busy

	// Silent means the line has carried no energy for the silence window.
	Silent
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ringing:
		return "ringing"
	case Pickup:
		return "pickup"
	case Busy:
		return "busy"
	case Silent:
		return "silent"
	default:
		return "unknown"
	}
}

// Detection thresholds. Tuned against recorded telephony audio at 16 kHz.
const (
	// DefaultFrameDuration is the expected spacing of ProcessFrame calls.
	DefaultFrameDuration = 30 * time.Millisecond

	// energyFloor is the RMS level below which a frame counts as silence.
	energyFloor = 500.0

	// windowFrames bounds the voice-ratio window (30 frames ≈ 0.9 s).
	windowFrames = 30

	// minWindowSamples is how many frames must be collected before the
	// voice ratio is trusted.
	minWindowSamples = 10

	// voiceRatioHigh classifies sustained voice.
	voiceRatioHigh = 0.6

	// voiceRatioLow classifies ringtone/music energy.
	voiceRatioLow = 0.3

	// silenceTimeout is how long sub-floor energy must persist before the
	// detector reports Silent.
	silenceTimeout = 2 * time.Second

	// ringToPickupDelay is how long the line must have been Ringing before
	// sustained voice is accepted as an answer.
	ringToPickupDelay = 500 * time.Millisecond

	// voiceConfirmTimeout promotes to Pickup without a preceding ring once
	// voice has persisted this long.
	voiceConfirmTimeout = 1500 * time.Millisecond

	// Busy tones occupy a narrow zero-crossing band; plain voice and music
	// spread wider.
	zcrBusyLow  = 0.1
	zcrBusyHigh = 0.3
)

// ChangeFunc receives state transitions. Invoked synchronously from
// ProcessFrame; keep it fast.
type ChangeFunc func(newState, oldState State)

// Option configures a Detector.
type Option func(*Detector)

// WithVAD supplies a VAD session used for per-frame voice classification.
// Without one the detector falls back to an energy heuristic.
func WithVAD(sess vad.SessionHandle) Option {
	return func(d *Detector) {
		d.vadSession = sess
	}
}

// WithFrameDuration overrides the per-call clock advance.
func WithFrameDuration(fd time.Duration) Option {
	return func(d *Detector) {
		d.frameDuration = fd
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.log = l
	}
}

// Detector classifies fixed-duration audio frames into line states.
// Safe for concurrent use, though a single capture loop is the expected
// caller.
type Detector struct {
	mu            sync.Mutex
	state         State
	frameDuration time.Duration
	vadSession    vad.SessionHandle
	log           *slog.Logger

	// clock is elapsed detection time, advanced one frame per call.
	clock time.Duration

	// window is a ring buffer of per-frame voice booleans.
	window [windowFrames]bool
	wLen   int
	wPos   int

	silenceSince time.Duration // clock value when silence began, -1 when none
	ringSince    time.Duration // clock value when Ringing was entered, -1 before
	voiceSince   time.Duration // clock value when continuous voice began, -1 when none

	latched  bool
	onChange []ChangeFunc
}

// NewDetector creates a Detector in the Idle state.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		frameDuration: DefaultFrameDuration,
		log:           slog.Default(),
		silenceSince:  -1,
		ringSince:     -1,
		voiceSince:    -1,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OnChange registers a transition callback.
func (d *Detector) OnChange(fn ChangeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// State returns the current classification.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reset clears all buffers, timers, and the pickup latch. Call before
// starting detection for a new call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Idle
	d.clock = 0
	d.wLen = 0
	d.wPos = 0
	d.silenceSince = -1
	d.ringSince = -1
	d.voiceSince = -1
	d.latched = false
	if d.vadSession != nil {
		d.vadSession.Reset()
	}
}

// ProcessFrame classifies one frame of 16-bit mono samples and returns the
// state after the frame. Call once per frame duration.
func (d *Detector) ProcessFrame(samples []int16) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clock += d.frameDuration
	energy := rms(samples)

	if energy < energyFloor {
		d.voiceSince = -1
		if d.silenceSince < 0 {
			d.silenceSince = d.clock
		}
		// The pickup latch wins over the silence rule: a pause after answer
		// must not look like the line dying.
		if !d.latched && d.state != Idle && d.clock-d.silenceSince >= silenceTimeout {
			d.setStateLocked(Silent)
		}
		return d.state
	}
	d.silenceSince = -1

	voiced := d.classifyVoice(samples, energy)
	d.pushWindow(voiced)

	if voiced {
		if d.voiceSince < 0 {
			d.voiceSince = d.clock
		}
	} else {
		d.voiceSince = -1
	}

	if d.latched || d.wLen < minWindowSamples {
		return d.state
	}

	ratio := d.voiceRatio()
	switch {
	case ratio > voiceRatioHigh:
		ringingLongEnough := d.state == Ringing && d.ringSince >= 0 &&
			d.clock-d.ringSince > ringToPickupDelay
		voiceConfirmed := d.voiceSince >= 0 &&
			d.clock-d.voiceSince >= voiceConfirmTimeout
		if ringingLongEnough || voiceConfirmed {
			d.setStateLocked(Pickup)
			d.latched = true
		}

	case ratio < voiceRatioLow:
		// Energy without voice: ringback, unless the zero-crossing rate sits
		// in the narrow band of a periodic busy tone.
		z := zcr(samples)
		if z >= zcrBusyLow && z <= zcrBusyHigh {
			d.setStateLocked(Busy)
		} else {
			d.setStateLocked(Ringing)
		}

	default:
		// Ambiguous ratio: hold the previous state.
	}
	return d.state
}

// setStateLocked records a transition and fires callbacks. Caller holds mu.
func (d *Detector) setStateLocked(to State) {
	if to == d.state {
		return
	}
	old := d.state
	d.state = to
	if to == Ringing {
		d.ringSince = d.clock
	}
	d.log.Debug("acoustic state transition", "from", old.String(), "to", to.String())
	for _, fn := range d.onChange {
		fn(to, old)
	}
}

// classifyVoice decides whether one supra-floor frame contains voice.
func (d *Detector) classifyVoice(samples []int16, energy float64) bool {
	if d.vadSession != nil {
		ev, err := d.vadSession.ProcessFrame(toBytes(samples))
		if err == nil {
			return ev.Type == vad.VADSpeechStart || ev.Type == vad.VADSpeechContinue
		}
		d.log.Debug("vad frame classification failed, using energy heuristic", "error", err)
	}
	// Heuristic: voice has both moderate energy and a mid-range
	// zero-crossing rate; pure tones cluster low.
	z := zcr(samples)
	return energy >= 2*energyFloor && z > zcrBusyHigh
}

// pushWindow appends one voice boolean to the ring buffer.
func (d *Detector) pushWindow(voiced bool) {
	d.window[d.wPos] = voiced
	d.wPos = (d.wPos + 1) % windowFrames
	if d.wLen < windowFrames {
		d.wLen++
	}
}

// voiceRatio returns voiced/total over the current window.
func (d *Detector) voiceRatio() float64 {
	if d.wLen == 0 {
		return 0
	}
	voiced := 0
	for i := 0; i < d.wLen; i++ {
		if d.window[i] {
			voiced++
		}
	}
	return float64(voiced) / float64(d.wLen)
}

// rms computes root-mean-square energy of a frame.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// zcr computes the zero-crossing rate: sign changes per sample.
func zcr(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// toBytes converts int16 samples to little-endian PCM bytes.
func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(uint16(s) >> 8)
	}
	return buf
}

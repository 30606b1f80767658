// Package capture turns a streaming STT session into a pull-based utterance
// queue for the call orchestrator. Final transcripts accumulate in a bounded
// queue; the orchestrator pulls them with Listen, pauses capture while the
// agent is speaking, and clears stale utterances between turns.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ringward/ringward/pkg/audio"
	"github.com/ringward/ringward/pkg/provider/stt"
)

const queueSize = 16

// Fragments the STT backends emit for silence or music. These never came from
// the callee, so accepting them would feed ghost turns to the conversation.
var hallucinations = []string{
	"thank you.",
	"thank you",
	"thanks for watching",
	"subscribe",
	"[music]",
	"[applause]",
	"शुक्रिया",
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithStreamConfig overrides the STT stream configuration.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(r *Recognizer) {
		r.cfg = cfg
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recognizer) {
		r.log = log
	}
}

// Recognizer feeds device audio into an STT session and queues the accepted
// final transcripts. Safe for concurrent use.
type Recognizer struct {
	provider stt.Provider
	input    audio.Input
	cfg      stt.StreamConfig
	log      *slog.Logger

	mu      sync.Mutex
	paused  bool
	started bool
	session stt.SessionHandle
	cancel  context.CancelFunc

	queue chan string
}

// New creates a Recognizer over the given STT provider and audio input.
// Call Start before Listen.
func New(provider stt.Provider, input audio.Input, opts ...Option) *Recognizer {
	r := &Recognizer{
		provider: provider,
		input:    input,
		cfg:      stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "hi"},
		log:      slog.Default(),
		queue:    make(chan string, queueSize),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start opens the STT session and begins pumping audio. The session stays
// open across Pause/Resume cycles so the provider keeps its calibration.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("capture already started")
	}

	session, err := r.provider.StartStream(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("start stt session: %w", err)
	}

	frames, err := r.input.Start(ctx)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("start audio input: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.session = session
	r.cancel = cancel
	r.started = true

	go r.feedLoop(runCtx, frames, session)
	go r.collectLoop(session)
	return nil
}

// Listen blocks until a final utterance is available or timeout elapses.
// The second return is false on timeout.
func (r *Recognizer) Listen(timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case utterance, ok := <-r.queue:
		if !ok {
			return "", false
		}
		return utterance, true
	case <-timer.C:
		return "", false
	}
}

// Pause stops forwarding audio to the STT session. The session stays open;
// frames captured while paused are dropped. Use while the agent is speaking
// so it does not transcribe its own voice.
func (r *Recognizer) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume restarts audio forwarding after a Pause.
func (r *Recognizer) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// Clear discards all queued utterances. Called between turns so the next
// Listen only sees speech produced after the agent finished talking.
func (r *Recognizer) Clear() {
	for {
		select {
		case <-r.queue:
		default:
			return
		}
	}
}

// Close tears down the session and the audio input. Idempotent.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	r.cancel()
	inputErr := r.input.Close()
	sessionErr := r.session.Close()
	return errors.Join(inputErr, sessionErr)
}

func (r *Recognizer) feedLoop(ctx context.Context, frames <-chan audio.AudioFrame, session stt.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.mu.Lock()
			paused := r.paused
			r.mu.Unlock()
			if paused {
				continue
			}
			if err := session.SendAudio(frame.Data); err != nil {
				r.log.Warn("send audio to stt failed", "error", err)
				return
			}
		}
	}
}

func (r *Recognizer) collectLoop(session stt.SessionHandle) {
	// Partials drive nothing here; drain them so the provider never blocks.
	go audio.Drain(session.Partials())

	for transcript := range session.Finals() {
		text := strings.TrimSpace(transcript.Text)
		if !accept(text) {
			continue
		}
		select {
		case r.queue <- text:
		default:
			// Queue full: drop the oldest so the newest utterance wins.
			select {
			case <-r.queue:
			default:
			}
			select {
			case r.queue <- text:
			default:
			}
		}
	}
}

// accept filters out empty and hallucinated finals.
func accept(text string) bool {
	if len(text) < 2 {
		return false
	}
	lower := strings.ToLower(text)
	for _, h := range hallucinations {
		if lower == h || strings.Contains(lower, h) && len(lower) <= len(h)+4 {
			return false
		}
	}
	return true
}

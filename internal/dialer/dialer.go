// Package dialer orchestrates a single automated call from pickup to forced
// termination: it plays the opening message, optionally runs the spoken
// conversation loop, enforces the hard time budgets, and records the result.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ringward/ringward/internal/callerr"
	"github.com/ringward/ringward/internal/convo"
	"github.com/ringward/ringward/internal/observe"
	"github.com/ringward/ringward/internal/resilience"
	"github.com/ringward/ringward/internal/results"
	"github.com/ringward/ringward/pkg/types"
)

// Player renders the opening message and spoken replies.
// *playback.Player satisfies it.
type Player interface {
	Speak(ctx context.Context, text string) error
	PlayFile(ctx context.Context, path string) (bool, error)
	Stop()
	Duration(path string) (time.Duration, error)
}

// Capturer supplies the callee's utterances. *capture.Recognizer satisfies it.
type Capturer interface {
	Listen(timeout time.Duration) (string, bool)
	Pause()
	Resume()
	Clear()
}

// Responder produces replies and post-call analysis. *convo.Service
// satisfies it.
type Responder interface {
	Reply(ctx context.Context, utterance string, history []types.ConversationTurn) (string, error)
	Analyze(ctx context.Context, history []types.ConversationTurn) (convo.Analysis, error)
	IsIrrelevant(reply string) bool
	MatchesEndPhrase(utterance string) bool
}

// ResultSink persists finished calls. *results.Store satisfies it.
type ResultSink interface {
	Record(ctx context.Context, r *results.Result) error
}

// EndCaller forces call termination on the device. probe.Transport
// satisfies it.
type EndCaller interface {
	SendEndCall(ctx context.Context) error
}

// Config holds the orchestrator's tuning knobs.
type Config struct {
	// OpeningAudioPath is the pre-rendered WAV played right after pickup.
	OpeningAudioPath string

	// ConversationEnabled turns on the spoken AI conversation after the
	// opening message. When false the call ends after the opening.
	ConversationEnabled bool

	// MaxCallDuration is the hard cap on conversation length. Default 180s.
	MaxCallDuration time.Duration

	// SilenceTimeout ends the conversation when the callee says nothing for
	// this long. Default 20s.
	SilenceTimeout time.Duration

	// MaxIrrelevantTurns ends the conversation after this many consecutive
	// replies where the model could not engage. Default 4.
	MaxIrrelevantTurns int

	// ListenPoll is the per-iteration Listen timeout, which also bounds how
	// fast the loop notices hangups and expired budgets. Default 500ms.
	ListenPoll time.Duration

	// Farewell is spoken best-effort before ending the call.
	Farewell string

	// SilenceMessage is spoken instead of the farewell when the silence
	// breaker trips: the callee went quiet, not goodbye.
	SilenceMessage string

	// Filler is spoken when reply generation fails, keeping the line alive.
	Filler string
}

func (c *Config) applyDefaults() {
	if c.MaxCallDuration <= 0 {
		c.MaxCallDuration = 180 * time.Second
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 20 * time.Second
	}
	if c.MaxIrrelevantTurns <= 0 {
		c.MaxIrrelevantTurns = 4
	}
	if c.ListenPoll <= 0 {
		c.ListenPoll = 500 * time.Millisecond
	}
	if c.Farewell == "" {
		c.Farewell = "theek hai, aapka samay dene ke liye dhanyavaad. namaste."
	}
	if c.SilenceMessage == "" {
		c.SilenceMessage = "lagta hai aap abhi vyast hain. hum aapse baad mein sampark karenge. namaste."
	}
	if c.Filler == "" {
		c.Filler = "ek minute rukiye, kripya dobara boliye."
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithReplyBreaker installs a circuit breaker around reply generation.
func WithReplyBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *Orchestrator) {
		o.breaker = cb
	}
}

// WithSessionEnd registers a hook that runs after every session, once the
// slot is free again. The acoustic wiring uses it to rearm the detector for
// the next call.
func WithSessionEnd(fn func()) Option {
	return func(o *Orchestrator) {
		o.sessionEnd = fn
	}
}

// Orchestrator runs at most one call session at a time. A pickup that arrives
// while a session is in flight is rejected, never queued.
type Orchestrator struct {
	player     Player
	capture    Capturer
	convo      Responder
	sink       ResultSink
	ender      EndCaller
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
	log        *slog.Logger
	sessionEnd func()

	// cfg is snapshotted at session start, so SetConfig never changes a
	// session mid-flight.
	cfgMu sync.RWMutex
	cfg   Config

	mu            sync.Mutex
	inCall        bool
	sessionCancel context.CancelFunc
}

// New creates an Orchestrator. convo may be nil when the conversation is
// disabled (audio-only mode); sink and ender may be nil in tests.
func New(cfg Config, player Player, capture Capturer, responder Responder, sink ResultSink, ender EndCaller, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:     cfg,
		player:  player,
		capture: capture,
		convo:   responder,
		sink:    sink,
		ender:   ender,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// SetConfig replaces the tuning knobs. The new values apply from the next
// session; a session already in flight keeps the config it started with.
func (o *Orchestrator) SetConfig(cfg Config) {
	cfg.applyDefaults()
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
	o.log.Info("call tuning updated",
		"max_duration", cfg.MaxCallDuration,
		"silence_timeout", cfg.SilenceTimeout,
		"max_irrelevant_turns", cfg.MaxIrrelevantTurns,
		"conversation", cfg.ConversationEnabled)
}

// config returns a snapshot of the current tuning.
func (o *Orchestrator) config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// HandlePickup runs the full session for an answered call. It returns
// callerr.ErrDuplicateCall without doing anything if a session is already in
// flight. Blocks until the session finishes; hook it to the state machine's
// pickup callback via a goroutine.
func (o *Orchestrator) HandlePickup(ctx context.Context, number string) error {
	o.mu.Lock()
	if o.inCall {
		o.mu.Unlock()
		o.log.Warn("pickup while session in flight, rejecting", "number", number)
		o.metrics.DuplicatePickups.Add(ctx, 1)
		return callerr.ErrDuplicateCall
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	o.inCall = true
	o.sessionCancel = cancel
	o.mu.Unlock()
	o.metrics.ActiveCalls.Add(ctx, 1)

	defer func() {
		cancel()
		o.mu.Lock()
		o.inCall = false
		o.sessionCancel = nil
		o.mu.Unlock()
		o.metrics.ActiveCalls.Add(context.Background(), -1)
		if o.sessionEnd != nil {
			o.sessionEnd()
		}
	}()

	o.runSession(sessionCtx, number)
	return nil
}

// HandleHangup cancels the in-flight session, if any, and halts playback.
// Safe to call at any time; wire it to the state machine's hangup callback.
func (o *Orchestrator) HandleHangup(number string, ringDuration time.Duration) {
	o.mu.Lock()
	cancel := o.sessionCancel
	o.mu.Unlock()
	if cancel != nil {
		o.log.Info("hangup detected, aborting session",
			"number", number, "ring_duration", ringDuration)
		cancel()
	}
	o.player.Stop()
}

func (o *Orchestrator) runSession(ctx context.Context, number string) {
	cfg := o.config()
	start := time.Now()
	o.log.Info("call session started", "number", number)

	listened, openingDuration := o.playOpening(ctx, cfg)

	var history []types.ConversationTurn
	if cfg.ConversationEnabled && o.convo != nil && ctx.Err() == nil {
		history = o.conversationLoop(ctx, start, cfg)
	}

	// Teardown always runs, even after a hangup: analysis and result
	// recording use a fresh context because the session one is likely
	// cancelled by now.
	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer teardownCancel()

	analysis := o.analyze(teardownCtx, history)
	duration := time.Since(start)
	o.record(teardownCtx, results.Result{
		Number:     number,
		StartedAt:  start,
		Duration:   duration,
		Listened:   listened,
		Opening:    openingDuration,
		Outcome:    analysis.Outcome,
		Interest:   analysis.Interest,
		Summary:    analysis.Summary,
		Transcript: renderTranscript(history),
	})

	if o.ender != nil {
		if err := o.ender.SendEndCall(teardownCtx); err != nil {
			o.log.Error("end-call command failed", "number", number, "error", err)
		}
	}

	o.metrics.RecordCall(teardownCtx, analysis.Outcome, duration)
	o.log.Info("call session finished",
		"number", number,
		"duration", duration,
		"listened", listened,
		"opening_duration", openingDuration,
		"outcome", analysis.Outcome,
		"interest", analysis.Interest)
}

// playOpening plays the opening message and returns how long the callee
// actually listened, capped at the file's duration.
func (o *Orchestrator) playOpening(ctx context.Context, cfg Config) (listened, total time.Duration) {
	if cfg.OpeningAudioPath == "" {
		return 0, 0
	}
	total, err := o.player.Duration(cfg.OpeningAudioPath)
	if err != nil {
		o.log.Warn("opening audio duration unknown", "error", err)
	}

	playStart := time.Now()
	completed, err := o.player.PlayFile(ctx, cfg.OpeningAudioPath)
	if err != nil {
		o.log.Error("opening playback failed", "error", err)
	}
	listened = time.Since(playStart)
	if total > 0 && (completed || listened > total) {
		listened = total
	}
	return listened, total
}

func (o *Orchestrator) conversationLoop(ctx context.Context, start time.Time, cfg Config) []types.ConversationTurn {
	var history []types.ConversationTurn
	lastSpeech := time.Now()
	irrelevant := 0

	// The recognizer sits paused between calls; wake it with a clean queue
	// and park it again on the way out.
	o.capture.Clear()
	o.capture.Resume()
	defer o.capture.Pause()

	for {
		if ctx.Err() != nil {
			return history
		}
		if time.Since(start) >= cfg.MaxCallDuration {
			o.tripBreaker(ctx, "duration")
			o.sayClosing(ctx, cfg.Farewell)
			return history
		}
		if time.Since(lastSpeech) >= cfg.SilenceTimeout {
			o.tripBreaker(ctx, "silence")
			o.sayClosing(ctx, cfg.SilenceMessage)
			return history
		}

		utterance, ok := o.capture.Listen(cfg.ListenPoll)
		if !ok {
			continue
		}
		lastSpeech = time.Now()
		history = append(history, types.ConversationTurn{Role: "user", Text: utterance, At: time.Since(start)})

		if o.convo.MatchesEndPhrase(utterance) {
			o.log.Info("callee asked to end the call", "utterance", utterance)
			o.capture.Pause()
			o.sayClosing(ctx, cfg.Farewell)
			return history
		}

		o.capture.Pause()
		reply := o.generateReply(ctx, utterance, history, cfg)

		if o.convo.IsIrrelevant(reply) {
			irrelevant++
		} else {
			irrelevant = 0
		}
		if irrelevant >= cfg.MaxIrrelevantTurns {
			o.tripBreaker(ctx, "irrelevance")
			o.sayClosing(ctx, cfg.Farewell)
			return history
		}

		o.speakReply(ctx, reply)
		history = append(history, types.ConversationTurn{Role: "assistant", Text: reply, At: time.Since(start)})
		o.metrics.ConversationTurns.Add(ctx, 1)

		o.capture.Clear()
		o.capture.Resume()
	}
}

// generateReply asks the model for the next line, going through the circuit
// breaker when one is installed. Any failure degrades to the filler phrase so
// the line never goes dead mid-call.
func (o *Orchestrator) generateReply(ctx context.Context, utterance string, history []types.ConversationTurn, cfg Config) string {
	var reply string
	gen := func() error {
		var err error
		reply, err = o.convo.Reply(ctx, utterance, history)
		return err
	}

	genStart := time.Now()
	var err error
	if o.breaker != nil {
		err = o.breaker.Execute(gen)
	} else {
		err = gen()
	}
	o.metrics.ReplyDuration.Record(ctx, time.Since(genStart).Seconds())
	if err != nil {
		o.log.Warn("reply generation failed, using filler",
			"utterance", utterance, "error", err)
		return cfg.Filler
	}
	return reply
}

// speakReply plays the reply one sentence at a time, checking for hangup
// between sentences so a cancelled session stops mid-reply.
func (o *Orchestrator) speakReply(ctx context.Context, reply string) {
	speakStart := time.Now()
	defer func() {
		o.metrics.SpeakDuration.Record(ctx, time.Since(speakStart).Seconds())
	}()
	for _, sentence := range splitSentences(reply) {
		if ctx.Err() != nil {
			return
		}
		if err := o.player.Speak(ctx, sentence); err != nil {
			o.log.Warn("speak failed", "error", err)
			return
		}
	}
}

// sayClosing speaks the session's last line: the farewell, or the silence
// message when the callee went quiet.
func (o *Orchestrator) sayClosing(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	if err := o.player.Speak(ctx, text); err != nil {
		o.log.Warn("closing line failed", "error", err)
	}
}

func (o *Orchestrator) analyze(ctx context.Context, history []types.ConversationTurn) convo.Analysis {
	if o.convo == nil {
		return convo.Analysis{Outcome: "no_conversation"}
	}
	analysis, err := o.convo.Analyze(ctx, history)
	if err != nil {
		o.log.Warn("post-call analysis failed", "error", err)
	}
	return analysis
}

func (o *Orchestrator) record(ctx context.Context, r results.Result) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Record(ctx, &r); err != nil {
		o.log.Error("recording call result failed", "number", r.Number, "error", err)
	}
}

func (o *Orchestrator) tripBreaker(ctx context.Context, breaker string) {
	o.log.Info("conversation breaker tripped", "breaker", breaker)
	o.metrics.RecordBreakerTrip(ctx, breaker)
}

// splitSentences cuts text at sentence boundaries: '.', '!', '?', or the
// Devanagari danda followed by whitespace or end of text.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isSentenceEnd(r) && (i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '।'
}

// renderTranscript flattens the conversation for storage, one turn per line.
func renderTranscript(history []types.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Text)
	}
	return b.String()
}

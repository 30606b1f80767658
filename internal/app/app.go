// Package app wires all Ringward subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the detector and HTTP loops, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithTransport, WithAudioInput, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ringward/ringward/internal/acoustic"
	"github.com/ringward/ringward/internal/call"
	"github.com/ringward/ringward/internal/callerr"
	"github.com/ringward/ringward/internal/capture"
	"github.com/ringward/ringward/internal/config"
	"github.com/ringward/ringward/internal/convo"
	"github.com/ringward/ringward/internal/dialer"
	"github.com/ringward/ringward/internal/health"
	"github.com/ringward/ringward/internal/observe"
	"github.com/ringward/ringward/internal/playback"
	"github.com/ringward/ringward/internal/probe"
	"github.com/ringward/ringward/internal/resilience"
	"github.com/ringward/ringward/internal/results"
	"github.com/ringward/ringward/pkg/audio"
	"github.com/ringward/ringward/pkg/provider/llm"
	"github.com/ringward/ringward/pkg/provider/stt"
	"github.com/ringward/ringward/pkg/provider/tts"
	"github.com/ringward/ringward/pkg/provider/vad"
	"github.com/ringward/ringward/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// App owns all subsystem lifetimes and drives the call automation pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	machine   *call.Machine
	transport probe.Transport
	poller    *probe.Poller
	receiver  *probe.Receiver
	detector  *acoustic.Detector
	monitor   audio.Input
	input     audio.Input
	output    audio.Output
	capture   *capture.Recognizer
	player    *playback.Player
	convo     *convo.Service
	dialer    *dialer.Orchestrator
	store     *results.Store
	metrics   *observe.Metrics
	httpSrv   *http.Server

	// conversation is the effective mode after provider availability is
	// accounted for; false means audio-only calls.
	conversation bool

	// runCtx is set at the top of Run and is the parent of every call
	// session. Detector callbacks fire only while Run's loops are alive.
	runMu  sync.Mutex
	runCtx context.Context

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport injects a device transport instead of creating an ADB one.
func WithTransport(t probe.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithResultStore injects a result store instead of opening one from config.
func WithResultStore(s *results.Store) Option {
	return func(a *App) { a.store = s }
}

// WithAudioInput injects the capture input instead of creating an ExecInput.
func WithAudioInput(in audio.Input) Option {
	return func(a *App) { a.input = in }
}

// WithAudioOutput injects the playback output instead of creating an ExecOutput.
func WithAudioOutput(out audio.Output) Option {
	return func(a *App) { a.output = out }
}

// WithMonitorInput injects the line-monitor input used by the acoustic
// detector instead of creating a second ExecInput.
func WithMonitorInput(in audio.Input) Option {
	return func(a *App) { a.monitor = in }
}

// WithMetrics injects a metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Result store ──────────────────────────────────────────────────
	if err := a.initResults(); err != nil {
		return nil, fmt.Errorf("app: init results: %w", err)
	}

	// ── 2. Audio endpoints ───────────────────────────────────────────────
	a.initAudio()

	// ── 3. Conversation stack ────────────────────────────────────────────
	a.initConversation()

	// ── 4. Device transport ──────────────────────────────────────────────
	a.initTransport()

	// ── 5. Call orchestrator ─────────────────────────────────────────────
	a.initDialer()

	// ── 6. Lifecycle machine + detector ──────────────────────────────────
	a.initMachine()
	if err := a.initDetector(); err != nil {
		return nil, fmt.Errorf("app: init detector: %w", err)
	}

	// ── 7. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initResults() error {
	if a.store != nil {
		return nil
	}
	path := a.cfg.Results.DBPath
	if path == "" {
		path = "ringward.db"
	}
	store, err := results.Open(path)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func (a *App) initAudio() {
	rate := a.cfg.Audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	if a.input == nil {
		var inOpts []audio.ExecInputOption
		inOpts = append(inOpts, audio.WithRecorderFormat(rate, 1))
		if dev := a.cfg.Audio.InputDevice; dev != "" {
			inOpts = append(inOpts, audio.WithRecorderDevice(dev))
		}
		in := audio.NewExecInput(inOpts...)
		a.input = in
		a.closers = append(a.closers, in.Close)
	}

	if a.output == nil {
		var outOpts []audio.ExecOutputOption
		outOpts = append(outOpts, audio.WithPlayerFormat(rate, 1))
		if bin := a.cfg.Audio.OutputBinary; bin != "" {
			outOpts = append(outOpts, audio.WithPlayerBinary(bin))
		}
		out := audio.NewExecOutput(outOpts...)
		a.output = out
		a.closers = append(a.closers, out.Close)
	}
}

// initConversation builds the speech stack. Any missing provider degrades the
// app to audio-only mode rather than failing startup: the opening message
// still plays, only the spoken exchange is skipped.
func (a *App) initConversation() {
	rate := a.cfg.Audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	voice := types.VoiceProfile{
		ID:          a.cfg.Call.Voice.VoiceID,
		Provider:    a.cfg.Providers.TTS.Name,
		SpeedFactor: a.cfg.Call.Voice.SpeedFactor,
	}
	a.player = playback.New(a.providers.TTS, a.output,
		playback.WithVoice(voice),
		playback.WithOutputFormat(audio.Format{SampleRate: rate, Channels: 1}),
	)

	a.conversation = a.cfg.Call.ConversationEnabled
	if a.conversation {
		var missing []string
		if a.providers.LLM == nil {
			missing = append(missing, "llm")
		}
		if a.providers.STT == nil {
			missing = append(missing, "stt")
		}
		if a.providers.TTS == nil {
			missing = append(missing, "tts")
		}
		if len(missing) > 0 {
			slog.Warn("conversation providers missing, calls will run in audio-only mode",
				"missing", missing)
			a.conversation = false
		}
	}

	if a.providers.STT != nil {
		lang := a.cfg.Call.Language
		if lang == "" {
			lang = "hi"
		}
		a.capture = capture.New(a.providers.STT, a.input, capture.WithStreamConfig(stt.StreamConfig{
			SampleRate: rate,
			Channels:   1,
			Language:   lang,
		}))
	}

	if a.conversation {
		a.convo = convo.New(a.providers.LLM)
	}
}

func (a *App) initTransport() {
	if a.transport != nil {
		return
	}
	var adbOpts []probe.ADBOption
	if path := a.cfg.Detector.ADB.Path; path != "" {
		adbOpts = append(adbOpts, probe.WithADBPath(path))
	}
	if d := a.cfg.Detector.ADB.CommandTimeout.Std(); d > 0 {
		adbOpts = append(adbOpts, probe.WithCommandTimeout(d))
	}
	a.transport = probe.NewADB(adbOpts...)
}

func (a *App) initDialer() {
	dcfg := a.dialerConfig(a.cfg.Call)

	var capturer dialer.Capturer
	if a.capture != nil {
		capturer = a.capture
	}
	var responder dialer.Responder
	if a.convo != nil {
		responder = a.convo
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "reply",
		MaxFailures:  3,
		ResetTimeout: 20 * time.Second,
	})

	a.dialer = dialer.New(dcfg, a.player, capturer, responder, a.store, a.transport,
		dialer.WithMetrics(a.metrics),
		dialer.WithReplyBreaker(breaker),
		dialer.WithSessionEnd(a.onSessionEnd),
	)
}

// dialerConfig maps the call section of the config onto the orchestrator's
// knobs. Conversation is gated on the providers actually being available.
func (a *App) dialerConfig(cc config.CallConfig) dialer.Config {
	return dialer.Config{
		OpeningAudioPath:    cc.OpeningAudio,
		ConversationEnabled: cc.ConversationEnabled && a.convo != nil,
		MaxCallDuration:     cc.MaxDuration.Std(),
		SilenceTimeout:      cc.SilenceTimeout.Std(),
		MaxIrrelevantTurns:  cc.MaxIrrelevantTurns,
		Farewell:            cc.Farewell,
		SilenceMessage:      cc.SilenceMessage,
	}
}

// ApplyCallConfig hot-reloads the per-call tuning: the orchestrator picks the
// new knobs up at the next session, the player at the next utterance.
func (a *App) ApplyCallConfig(cc config.CallConfig) {
	a.dialer.SetConfig(a.dialerConfig(cc))
	a.player.SetVoice(types.VoiceProfile{
		ID:          cc.Voice.VoiceID,
		Provider:    a.cfg.Providers.TTS.Name,
		SpeedFactor: cc.Voice.SpeedFactor,
	})
}

// onSessionEnd rearms the acoustic detector once a session's slot is free:
// the pickup latch holds until Reset, and the machine must return to idle
// before the next call's ring can register. The probe poller needs no
// rearming; it keeps reading device state.
func (a *App) onSessionEnd() {
	if a.detector == nil {
		return
	}
	a.detector.Reset()
	a.machine.Apply(call.Signal{State: call.Idle, ObservedAt: time.Now(), Direction: call.Outgoing})
}

func (a *App) initMachine() {
	a.machine = call.NewMachine(call.WithNumberResolver(func() string {
		if a.poller != nil {
			return a.poller.ResolveNumber()
		}
		return ""
	}))

	a.machine.OnRinging(func(number string, direction call.Direction) {
		a.metrics.RecordTransition(context.Background(), "ringing")
		slog.Info("call ringing", "number", number, "direction", direction)
	})
	a.machine.OnPickup(func(number string) {
		a.metrics.RecordTransition(context.Background(), "active")
		go func() {
			err := a.dialer.HandlePickup(a.sessionContext(), number)
			if err != nil && !errors.Is(err, callerr.ErrDuplicateCall) {
				slog.Error("call session failed", "number", number, "error", err)
			}
		}()
	})
	a.machine.OnHangup(func(number string, ringDuration time.Duration) {
		a.metrics.RecordTransition(context.Background(), "idle")
		a.dialer.HandleHangup(number, ringDuration)
	})
}

func (a *App) initDetector() error {
	switch a.cfg.Detector.Mode {
	case config.DetectorAcoustic:
		var detOpts []acoustic.Option
		if a.providers.VAD != nil {
			rate := a.cfg.Audio.SampleRate
			if rate <= 0 {
				rate = 16000
			}
			sess, err := a.providers.VAD.NewSession(vad.Config{
				SampleRate:       rate,
				FrameSizeMs:      30,
				SpeechThreshold:  0.5,
				SilenceThreshold: 0.35,
			})
			if err != nil {
				return fmt.Errorf("create vad session: %w", err)
			}
			a.closers = append(a.closers, sess.Close)
			detOpts = append(detOpts, acoustic.WithVAD(sess))
		}
		a.detector = acoustic.NewDetector(detOpts...)
		a.detector.OnChange(a.onAcousticChange)

		// The detector taps the line with its own recorder so the capture
		// recognizer keeps exclusive use of the main input stream.
		if a.monitor == nil {
			rate := a.cfg.Audio.SampleRate
			if rate <= 0 {
				rate = 16000
			}
			var inOpts []audio.ExecInputOption
			inOpts = append(inOpts, audio.WithRecorderFormat(rate, 1))
			if dev := a.cfg.Audio.InputDevice; dev != "" {
				inOpts = append(inOpts, audio.WithRecorderDevice(dev))
			}
			mon := audio.NewExecInput(inOpts...)
			a.monitor = mon
			a.closers = append(a.closers, mon.Close)
		}

	default: // DetectorProbe
		var pollOpts []probe.PollerOption
		if d := a.cfg.Detector.ADB.PollInterval.Std(); d > 0 {
			pollOpts = append(pollOpts, probe.WithPollInterval(d))
		}
		pollOpts = append(pollOpts, probe.WithPollerMetrics(a.metrics))
		a.poller = probe.NewPoller(a.transport, a.machine, pollOpts...)
	}

	if a.cfg.Detector.PushEnabled {
		a.receiver = probe.NewReceiver(a.machine, slog.Default())
	}
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		{Name: "results", Check: func(ctx context.Context) error {
			_, err := a.store.Recent(ctx, 1)
			return err
		}},
	}
	if a.cfg.Detector.Mode == config.DetectorProbe {
		checkers = append(checkers, health.Checker{Name: "device", Check: func(ctx context.Context) error {
			_, err := a.transport.QueryCallState(ctx)
			return err
		}})
	}
	health.New(checkers...).Register(mux)
	mux.Handle("/calls/recent", health.RecentCalls(a.store))
	mux.Handle("/metrics", promhttp.Handler())
	if a.receiver != nil {
		a.receiver.Register(mux)
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// onAcousticChange maps line classifications onto lifecycle signals. The
// machine's own edge-triggering makes repeated signals harmless.
func (a *App) onAcousticChange(newState, oldState acoustic.State) {
	sig := call.Signal{ObservedAt: time.Now(), Direction: call.Outgoing}
	switch newState {
	case acoustic.Ringing:
		sig.State = call.Ringing
	case acoustic.Pickup:
		sig.State = call.Active
	case acoustic.Busy, acoustic.Silent:
		sig.State = call.Idle
	default:
		return
	}
	a.machine.Apply(sig)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the detector loop, the speech recognizer, and the HTTP server,
// then blocks until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.runMu.Lock()
	a.runCtx = ctx
	a.runMu.Unlock()

	if a.capture != nil {
		if err := a.capture.Start(ctx); err != nil {
			return fmt.Errorf("app: start capture: %w", err)
		}
		defer a.capture.Close()
		// Capture stays paused until the dialer resumes it during a call.
		a.capture.Pause()
	}

	g, gctx := errgroup.WithContext(ctx)

	switch {
	case a.poller != nil:
		g.Go(func() error {
			return a.poller.Run(gctx)
		})
	case a.detector != nil:
		g.Go(func() error {
			return a.monitorLoop(gctx)
		})
	}

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("app running",
		"detector", a.cfg.Detector.Mode,
		"conversation", a.conversation)

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// monitorLoop feeds line audio into the acoustic detector, frame by frame.
func (a *App) monitorLoop(ctx context.Context) error {
	frames, err := a.monitor.Start(ctx)
	if err != nil {
		return fmt.Errorf("start line monitor: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			a.detector.ProcessFrame(decodeSamples(frame.Data))
		}
	}
}

// decodeSamples converts little-endian 16-bit PCM bytes into samples.
// A trailing odd byte is dropped.
func decodeSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// sessionContext returns the context call sessions should inherit from.
func (a *App) sessionContext() context.Context {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}

// Machine exposes the lifecycle machine, mainly for tests and the push
// receiver wiring in main.
func (a *App) Machine() *call.Machine {
	return a.machine
}

// Detector exposes the acoustic detector; nil in probe mode.
func (a *App) Detector() *acoustic.Detector {
	return a.detector
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

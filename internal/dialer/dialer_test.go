package dialer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ringward/ringward/internal/callerr"
	"github.com/ringward/ringward/internal/convo"
	"github.com/ringward/ringward/internal/observe"
	"github.com/ringward/ringward/internal/results"
	"github.com/ringward/ringward/pkg/types"
)

// fakePlayer simulates real-time file playback so hangups can land mid-file.
type fakePlayer struct {
	mu           sync.Mutex
	fileDuration time.Duration
	playInstant  bool // when true, PlayFile returns immediately as completed
	speakErr     error

	spoken    []string
	playCalls int
	stopCalls int
}

func (p *fakePlayer) Speak(ctx context.Context, text string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.speakErr != nil {
		return p.speakErr
	}
	p.spoken = append(p.spoken, text)
	return nil
}

func (p *fakePlayer) PlayFile(ctx context.Context, _ string) (bool, error) {
	p.mu.Lock()
	p.playCalls++
	instant := p.playInstant
	d := p.fileDuration
	p.mu.Unlock()
	if instant {
		return true, nil
	}
	select {
	case <-time.After(d):
		return true, nil
	case <-ctx.Done():
		return false, nil
	}
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stopCalls++
	p.mu.Unlock()
}

func (p *fakePlayer) Duration(string) (time.Duration, error) {
	return p.fileDuration, nil
}

func (p *fakePlayer) spokenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// fakeCapture serves scripted utterances.
type fakeCapture struct {
	utterances chan string

	mu          sync.Mutex
	pauseCalls  int
	resumeCalls int
	clearCalls  int
}

func newFakeCapture(utterances ...string) *fakeCapture {
	ch := make(chan string, len(utterances))
	for _, u := range utterances {
		ch <- u
	}
	return &fakeCapture{utterances: ch}
}

func (c *fakeCapture) Listen(timeout time.Duration) (string, bool) {
	select {
	case u := <-c.utterances:
		return u, true
	case <-time.After(timeout):
		return "", false
	}
}

func (c *fakeCapture) Pause()  { c.mu.Lock(); c.pauseCalls++; c.mu.Unlock() }
func (c *fakeCapture) Resume() { c.mu.Lock(); c.resumeCalls++; c.mu.Unlock() }
func (c *fakeCapture) Clear()  { c.mu.Lock(); c.clearCalls++; c.mu.Unlock() }

// fakeResponder scripts replies and reuses the real classification rules.
type fakeResponder struct {
	mu       sync.Mutex
	replies  []string
	replyErr error
	calls    int

	analysis convo.Analysis
}

func (r *fakeResponder) Reply(_ context.Context, _ string, _ []types.ConversationTurn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.replyErr != nil {
		return "", r.replyErr
	}
	if len(r.replies) == 0 {
		return "theek hai.", nil
	}
	reply := r.replies[0]
	if len(r.replies) > 1 {
		r.replies = r.replies[1:]
	}
	return reply, nil
}

func (r *fakeResponder) Analyze(context.Context, []types.ConversationTurn) (convo.Analysis, error) {
	return r.analysis, nil
}

func (r *fakeResponder) IsIrrelevant(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "maaf")
}

func (r *fakeResponder) MatchesEndPhrase(utterance string) bool {
	return strings.Contains(strings.ToLower(utterance), "bye")
}

func (r *fakeResponder) replyCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeSink struct {
	mu      sync.Mutex
	results []results.Result
}

func (s *fakeSink) Record(_ context.Context, r *results.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *r)
	return nil
}

func (s *fakeSink) recorded() []results.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]results.Result(nil), s.results...)
}

type fakeEnder struct {
	mu    sync.Mutex
	calls int
}

func (e *fakeEnder) SendEndCall(context.Context) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return nil
}

func (e *fakeEnder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestHandlePickup_DuplicateRejected(t *testing.T) {
	player := &fakePlayer{fileDuration: 2 * time.Second}
	o := New(
		Config{OpeningAudioPath: "opening.wav"},
		player, newFakeCapture(), nil, &fakeSink{}, &fakeEnder{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.HandlePickup(ctx, "+911111111111") }()

	// Wait until the first session is in flight.
	waitFor(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return player.playCalls == 1
	})

	if err := o.HandlePickup(ctx, "+922222222222"); !errors.Is(err, callerr.ErrDuplicateCall) {
		t.Errorf("second pickup error = %v, want ErrDuplicateCall", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("first pickup error = %v", err)
	}
}

func TestHangupAbortsOpeningPlayback(t *testing.T) {
	player := &fakePlayer{fileDuration: 8 * time.Second}
	sink := &fakeSink{}
	ender := &fakeEnder{}
	o := New(
		Config{OpeningAudioPath: "opening.wav"},
		player, newFakeCapture(), nil, sink, ender,
	)

	done := make(chan struct{})
	go func() {
		_ = o.HandlePickup(context.Background(), "+919876543210")
		close(done)
	}()

	// Hang up 200 ms into the 8 s opening.
	time.Sleep(200 * time.Millisecond)
	hangupAt := time.Now()
	o.HandleHangup("+919876543210", 3*time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after hangup")
	}
	if halted := time.Since(hangupAt); halted > time.Second {
		t.Errorf("playback halted %v after hangup, want well under 1s", halted)
	}

	recorded := sink.recorded()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d results, want 1", len(recorded))
	}
	r := recorded[0]
	if r.Listened > 8*time.Second {
		t.Errorf("listened = %v, exceeds audio duration", r.Listened)
	}
	if r.Listened < 150*time.Millisecond || r.Listened > 2*time.Second {
		t.Errorf("listened = %v, want roughly the 200ms heard before hangup", r.Listened)
	}
	if ender.callCount() != 1 {
		t.Errorf("end-call commands = %d, want 1 even after hangup", ender.callCount())
	}
}

func TestListenedCappedAtFileDuration(t *testing.T) {
	// Playback completes instantly, so wall-clock elapsed is near zero but
	// completion means the whole message was heard.
	player := &fakePlayer{fileDuration: 8 * time.Second, playInstant: true}
	sink := &fakeSink{}
	o := New(
		Config{OpeningAudioPath: "opening.wav"},
		player, newFakeCapture(), nil, sink, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}

	recorded := sink.recorded()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d results, want 1", len(recorded))
	}
	if recorded[0].Listened != 8*time.Second {
		t.Errorf("listened = %v, want full 8s for completed playback", recorded[0].Listened)
	}
}

func TestConversation_IrrelevanceBreaker(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{
		replies:  []string{"maaf kijiye, samajh nahi aaya."},
		analysis: convo.Analysis{Outcome: "unclear"},
	}
	capture := newFakeCapture(
		"pehla sawal", "doosra sawal", "teesra sawal", "chautha sawal",
		"paanchva sawal", "chhatha sawal",
	)
	o := New(
		Config{ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, capture, responder, &fakeSink{}, &fakeEnder{},
	)

	start := time.Now()
	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("session ran %v, breaker did not bound it", elapsed)
	}
	if got := responder.replyCalls(); got != 4 {
		t.Errorf("reply calls = %d, want exactly 4 before the breaker trips", got)
	}

	spoken := player.spokenLines()
	if len(spoken) == 0 || !strings.Contains(spoken[len(spoken)-1], "dhanyavaad") {
		t.Errorf("last line spoken = %v, want the farewell", spoken)
	}
}

func TestConversation_RelevantTurnResetsIrrelevance(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{
		replies: []string{
			"maaf kijiye.", "maaf kijiye.", "maaf kijiye.",
			"hamara plan 499 se shuru hota hai.",
			"maaf kijiye.", "maaf kijiye.", "maaf kijiye.", "maaf kijiye.",
		},
		analysis: convo.Analysis{Outcome: "unclear"},
	}
	utterances := make([]string, 10)
	for i := range utterances {
		utterances[i] = "sawal"
	}
	o := New(
		Config{ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, newFakeCapture(utterances...), responder, &fakeSink{}, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	// Three irrelevant, one relevant (resets), then four more irrelevant.
	if got := responder.replyCalls(); got != 8 {
		t.Errorf("reply calls = %d, want 8", got)
	}
}

func TestConversation_EndPhrase(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "not_interested"}}
	capture := newFakeCapture("ok bye")
	sink := &fakeSink{}
	o := New(
		Config{ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, capture, responder, sink, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	if got := responder.replyCalls(); got != 0 {
		t.Errorf("reply calls = %d, want 0 after immediate end phrase", got)
	}

	recorded := sink.recorded()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d results, want 1", len(recorded))
	}
	if !strings.Contains(recorded[0].Transcript, "user: ok bye") {
		t.Errorf("transcript = %q, want the callee's turn in it", recorded[0].Transcript)
	}
}

func TestConversation_SilenceBreaker(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "no_answer"}}
	o := New(
		Config{
			ConversationEnabled: true,
			SilenceTimeout:      200 * time.Millisecond,
			ListenPoll:          50 * time.Millisecond,
		},
		player, newFakeCapture(), responder, &fakeSink{}, &fakeEnder{},
	)

	start := time.Now()
	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 200*time.Millisecond {
		t.Errorf("session ended after %v, before the silence timeout", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("session ran %v, silence breaker did not bound it", elapsed)
	}

	// The callee went quiet, not goodbye: the silence message is spoken, not
	// the farewell.
	spoken := player.spokenLines()
	if len(spoken) != 1 || !strings.Contains(spoken[0], "vyast") {
		t.Errorf("spoken = %v, want the silence message", spoken)
	}
}

func TestConversation_SilenceMessageConfigurable(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "no_answer"}}
	o := New(
		Config{
			ConversationEnabled: true,
			SilenceTimeout:      200 * time.Millisecond,
			ListenPoll:          50 * time.Millisecond,
			SilenceMessage:      "koi jawab nahi mila, phir milenge.",
		},
		player, newFakeCapture(), responder, &fakeSink{}, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	spoken := player.spokenLines()
	if len(spoken) != 1 || spoken[0] != "koi jawab nahi mila, phir milenge." {
		t.Errorf("spoken = %v, want the configured silence message", spoken)
	}
}

func TestConversation_DurationBreaker(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "unclear"}}
	utterances := make([]string, 100)
	for i := range utterances {
		utterances[i] = "aur batao"
	}
	o := New(
		Config{
			ConversationEnabled: true,
			MaxCallDuration:     300 * time.Millisecond,
			ListenPoll:          50 * time.Millisecond,
		},
		player, newFakeCapture(utterances...), responder, &fakeSink{}, &fakeEnder{},
	)

	start := time.Now()
	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("session ran %v, duration breaker did not bound it", elapsed)
	}
}

func TestConversation_ReplyErrorUsesFiller(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{
		replyErr: errors.New("model down"),
		analysis: convo.Analysis{Outcome: "unclear"},
	}
	capture := newFakeCapture("sawal", "bye")
	o := New(
		Config{ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, capture, responder, &fakeSink{}, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}

	spoken := player.spokenLines()
	found := false
	for _, line := range spoken {
		if strings.Contains(line, "dobara boliye") {
			found = true
		}
	}
	if !found {
		t.Errorf("spoken = %v, want the filler phrase after a failed reply", spoken)
	}
}

func TestAudioOnlyMode_NoConversation(t *testing.T) {
	player := &fakePlayer{fileDuration: 100 * time.Millisecond}
	sink := &fakeSink{}
	ender := &fakeEnder{}
	o := New(
		Config{OpeningAudioPath: "opening.wav", ConversationEnabled: false},
		player, newFakeCapture("should never be read"), nil, sink, ender,
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	if len(player.spokenLines()) != 0 {
		t.Errorf("spoken = %v, want nothing in audio-only mode", player.spokenLines())
	}
	if ender.callCount() != 1 {
		t.Errorf("end-call commands = %d, want 1", ender.callCount())
	}
	recorded := sink.recorded()
	if len(recorded) != 1 || recorded[0].Outcome != "no_conversation" {
		t.Errorf("recorded = %+v, want one no_conversation result", recorded)
	}
}

func TestSessionEndHookRunsAfterSlotFrees(t *testing.T) {
	player := &fakePlayer{fileDuration: 50 * time.Millisecond}
	o := New(
		Config{OpeningAudioPath: "opening.wav"},
		player, newFakeCapture(), nil, &fakeSink{}, &fakeEnder{},
	)

	// The hook must observe a free slot: a pickup issued from inside it may
	// not be rejected as a duplicate.
	hookRuns := make(chan error, 2)
	o.sessionEnd = func() {
		o.mu.Lock()
		busy := o.inCall
		o.mu.Unlock()
		if busy {
			hookRuns <- errors.New("session still marked in flight")
			return
		}
		hookRuns <- nil
	}

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	select {
	case err := <-hookRuns:
		if err != nil {
			t.Errorf("session end hook: %v", err)
		}
	default:
		t.Fatal("session end hook never ran")
	}
}

func TestSetConfigAppliesToNextSession(t *testing.T) {
	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "no_answer"}}
	o := New(
		Config{
			ConversationEnabled: true,
			SilenceTimeout:      200 * time.Millisecond,
			ListenPoll:          50 * time.Millisecond,
		},
		player, newFakeCapture(), responder, &fakeSink{}, &fakeEnder{},
	)

	o.SetConfig(Config{
		ConversationEnabled: true,
		SilenceTimeout:      200 * time.Millisecond,
		ListenPoll:          50 * time.Millisecond,
		SilenceMessage:      "naya sandesh.",
	})

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	spoken := player.spokenLines()
	if len(spoken) != 1 || spoken[0] != "naya sandesh." {
		t.Errorf("spoken = %v, want the reloaded silence message", spoken)
	}
}

func TestOpeningDurationRecorded(t *testing.T) {
	player := &fakePlayer{fileDuration: 8 * time.Second, playInstant: true}
	sink := &fakeSink{}
	o := New(
		Config{OpeningAudioPath: "opening.wav"},
		player, newFakeCapture(), nil, sink, &fakeEnder{},
	)

	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}
	recorded := sink.recorded()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d results, want 1", len(recorded))
	}
	if recorded[0].Opening != 8*time.Second {
		t.Errorf("opening = %v, want the full file duration", recorded[0].Opening)
	}
}

func TestSessionMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	player := &fakePlayer{fileDuration: 2 * time.Second}
	responder := &fakeResponder{analysis: convo.Analysis{Outcome: "unclear"}}
	o := New(
		Config{OpeningAudioPath: "opening.wav", ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, newFakeCapture("sawal", "bye"), responder, &fakeSink{}, &fakeEnder{},
		WithMetrics(m),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.HandlePickup(ctx, "+911111111111") }()
	waitFor(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return player.playCalls == 1
	})

	if err := o.HandlePickup(ctx, "+922222222222"); !errors.Is(err, callerr.ErrDuplicateCall) {
		t.Fatalf("second pickup error = %v, want ErrDuplicateCall", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("first pickup error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if got := counterValue(rm, "ringward.calls.duplicate_pickups"); got != 1 {
		t.Errorf("duplicate pickups = %d, want 1", got)
	}
	if got := counterValue(rm, "ringward.calls.active"); got != 0 {
		t.Errorf("active calls after session = %d, want 0", got)
	}
}

func TestConversationTurnMetricRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	player := &fakePlayer{playInstant: true}
	responder := &fakeResponder{
		replies:  []string{"hamara plan 499 se shuru hota hai."},
		analysis: convo.Analysis{Outcome: "unclear"},
	}
	o := New(
		Config{ConversationEnabled: true, ListenPoll: 50 * time.Millisecond},
		player, newFakeCapture("sawal", "bye"), responder, &fakeSink{}, &fakeEnder{},
		WithMetrics(m),
	)
	if err := o.HandlePickup(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("HandlePickup: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterValue(rm, "ringward.conversation.turns"); got != 1 {
		t.Errorf("conversation turns = %d, want 1", got)
	}
	if got := histogramCount(rm, "ringward.reply.duration"); got != 1 {
		t.Errorf("reply duration samples = %d, want 1", got)
	}
	if got := histogramCount(rm, "ringward.speak.duration"); got != 1 {
		t.Errorf("speak duration samples = %d, want 1", got)
	}
}

// counterValue sums all data points of an int64 counter, 0 when absent.
func counterValue(rm metricdata.ResourceMetrics, name string) int64 {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				return 0
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// histogramCount sums the sample counts of a float64 histogram, 0 when absent.
func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				return 0
			}
			var total uint64
			for _, dp := range hist.DataPoints {
				total += dp.Count
			}
			return total
		}
	}
	return 0
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"namaste. kaise hain aap?", []string{"namaste.", "kaise hain aap?"}},
		{"ek hi vakya", []string{"ek hi vakya"}},
		{"bahut badhiya! phir milte hain.", []string{"bahut badhiya!", "phir milte hain."}},
		{"yah pehla vakya hai। doosra vakya।", []string{"yah pehla vakya hai।", "doosra vakya।"}},
		{"daam 4.99 rupaye hai.", []string{"daam 4.99 rupaye hai."}},
		{"", nil},
	}
	for _, tt := range tests {
		got := splitSentences(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("splitSentences(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitSentences(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

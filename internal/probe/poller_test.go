package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ringward/ringward/internal/call"
)

// fakeTransport serves a scripted sequence of dumps, repeating the last one
// once the script is exhausted.
type fakeTransport struct {
	mu      sync.Mutex
	dumps   []string
	errs    []error
	idx     int
	number  string
	ended   int
	numErr  error
	queries int
}

func (f *fakeTransport) QueryCallState(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	i := f.idx
	if i >= len(f.dumps) {
		i = len(f.dumps) - 1
	} else {
		f.idx++
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.dumps[i], nil
}

func (f *fakeTransport) ReadNumberFile(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.number, f.numErr
}

func (f *fakeTransport) SendEndCall(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func TestPollerFeedsMachine(t *testing.T) {
	ft := &fakeTransport{dumps: []string{dumpIdle, dumpOutgoingRingback, dumpActive, dumpIdle}}
	m := call.NewMachine()

	var mu sync.Mutex
	var events []string
	m.OnRinging(func(string, call.Direction) {
		mu.Lock()
		events = append(events, "ringing")
		mu.Unlock()
	})
	m.OnPickup(func(string) {
		mu.Lock()
		events = append(events, "pickup")
		mu.Unlock()
	})
	m.OnHangup(func(string, time.Duration) {
		mu.Lock()
		events = append(events, "hangup")
		mu.Unlock()
	})

	p := NewPoller(ft, m, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"ringing", "pickup", "hangup"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestPollerTreatsFailureAsIdle(t *testing.T) {
	probeErr := errors.New("device offline")
	ft := &fakeTransport{
		dumps: []string{dumpActive, "", dumpActive},
		errs:  []error{nil, probeErr, nil},
	}
	m := call.NewMachine()

	var mu sync.Mutex
	var pickups, hangups int
	m.OnPickup(func(string) { mu.Lock(); pickups++; mu.Unlock() })
	m.OnHangup(func(string, time.Duration) { mu.Lock(); hangups++; mu.Unlock() })

	p := NewPoller(ft, m, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	// Active → (failure ⇒ idle) → Active again: two pickups, one hangup,
	// and the loop survived the failing tick.
	mu.Lock()
	defer mu.Unlock()
	if pickups != 2 {
		t.Errorf("pickups = %d, want 2", pickups)
	}
	if hangups != 1 {
		t.Errorf("hangups = %d, want 1", hangups)
	}
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	ft := &fakeTransport{dumps: []string{dumpIdle}}
	p := NewPoller(ft, call.NewMachine(), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestResolveNumberPrefersSideChannel(t *testing.T) {
	ft := &fakeTransport{
		dumps:  []string{dumpIncomingRinging},
		number: "+4915112345678",
	}
	p := NewPoller(ft, call.NewMachine())

	if got := p.ResolveNumber(); got != "+4915112345678" {
		t.Errorf("ResolveNumber = %q, want side-channel number", got)
	}
}

func TestResolveNumberFallsBackToDump(t *testing.T) {
	ft := &fakeTransport{
		dumps:  []string{dumpIncomingRinging},
		number: "123", // implausibly short
	}
	p := NewPoller(ft, call.NewMachine())

	if got := p.ResolveNumber(); got != "+919876543210" {
		t.Errorf("ResolveNumber = %q, want dump fallback", got)
	}
}

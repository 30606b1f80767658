package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ringward/ringward/pkg/audio"
	audiomock "github.com/ringward/ringward/pkg/audio/mock"
	"github.com/ringward/ringward/pkg/provider/stt"
	sttmock "github.com/ringward/ringward/pkg/provider/stt/mock"
	"github.com/ringward/ringward/pkg/types"
)

func newTestRecognizer(t *testing.T) (*Recognizer, *sttmock.Session, chan audio.AudioFrame) {
	t.Helper()
	session := &sttmock.Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
	frames := make(chan audio.AudioFrame, 16)
	r := New(&sttmock.Provider{Session: session}, &audiomock.Input{Frames: frames})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		close(session.FinalsCh)
		close(session.PartialsCh)
		_ = r.Close()
	})
	return r, session, frames
}

func TestListen_ReceivesFinal(t *testing.T) {
	r, session, _ := newTestRecognizer(t)

	session.FinalsCh <- types.Transcript{Text: "haan boliye", IsFinal: true}

	got, ok := r.Listen(time.Second)
	if !ok {
		t.Fatal("Listen timed out")
	}
	if got != "haan boliye" {
		t.Errorf("utterance = %q, want %q", got, "haan boliye")
	}
}

func TestListen_Timeout(t *testing.T) {
	r, _, _ := newTestRecognizer(t)

	start := time.Now()
	_, ok := r.Listen(50 * time.Millisecond)
	if ok {
		t.Error("expected timeout")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, want >= 50ms", elapsed)
	}
}

func TestHallucinationFilter(t *testing.T) {
	r, session, _ := newTestRecognizer(t)

	session.FinalsCh <- types.Transcript{Text: "Thank you.", IsFinal: true}
	session.FinalsCh <- types.Transcript{Text: "Thanks for watching!", IsFinal: true}
	session.FinalsCh <- types.Transcript{Text: "a", IsFinal: true}
	session.FinalsCh <- types.Transcript{Text: "mujhe plan ke baare mein batao", IsFinal: true}

	got, ok := r.Listen(time.Second)
	if !ok {
		t.Fatal("Listen timed out")
	}
	if got != "mujhe plan ke baare mein batao" {
		t.Errorf("utterance = %q, junk finals were not filtered", got)
	}
}

func TestPause_DropsFramesKeepsSession(t *testing.T) {
	r, session, frames := newTestRecognizer(t)

	frames <- audio.AudioFrame{Data: []byte{1, 2}}
	waitFor(t, func() bool { return session.SendAudioCallCount() == 1 })

	r.Pause()
	frames <- audio.AudioFrame{Data: []byte{3, 4}}
	frames <- audio.AudioFrame{Data: []byte{5, 6}}
	time.Sleep(50 * time.Millisecond)
	if n := session.SendAudioCallCount(); n != 1 {
		t.Errorf("SendAudio calls while paused = %d, want 1", n)
	}
	if session.CloseCallCount != 0 {
		t.Error("session closed during pause, want it kept open")
	}

	r.Resume()
	frames <- audio.AudioFrame{Data: []byte{7, 8}}
	waitFor(t, func() bool { return session.SendAudioCallCount() == 2 })
}

func TestClear(t *testing.T) {
	r, session, _ := newTestRecognizer(t)

	session.FinalsCh <- types.Transcript{Text: "pehla utterance", IsFinal: true}
	session.FinalsCh <- types.Transcript{Text: "doosra utterance", IsFinal: true}
	waitFor(t, func() bool { return len(r.queue) == 2 })

	r.Clear()
	if _, ok := r.Listen(50 * time.Millisecond); ok {
		t.Error("Listen returned an utterance after Clear")
	}
}

func TestStart_SessionError(t *testing.T) {
	r := New(
		&sttmock.Provider{StartStreamErr: errors.New("auth failed")},
		&audiomock.Input{},
	)
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error from failed session start")
	}
}

func TestStart_InputErrorClosesSession(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan stt.Transcript),
		FinalsCh:   make(chan stt.Transcript),
	}
	r := New(
		&sttmock.Provider{Session: session},
		&audiomock.Input{StartErr: errors.New("no device")},
	)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error from failed input start")
	}
	if session.CloseCallCount != 1 {
		t.Errorf("session close count = %d, want 1", session.CloseCallCount)
	}
}

func TestStart_Twice(t *testing.T) {
	r, _, _ := newTestRecognizer(t)
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestClose_Idempotent(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan stt.Transcript, 1),
		FinalsCh:   make(chan stt.Transcript, 1),
	}
	in := &audiomock.Input{Frames: make(chan audio.AudioFrame)}
	r := New(&sttmock.Provider{Session: session}, in)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(session.FinalsCh)
	close(session.PartialsCh)

	if err := r.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if session.CloseCallCount != 1 {
		t.Errorf("session close count = %d, want 1", session.CloseCallCount)
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"haan boliye", true},
		{"nahi chahiye", true},
		{"", false},
		{"a", false},
		{"thank you.", false},
		{"Thanks for watching", false},
		{"[music]", false},
		{"thank you for calling about the plan", true},
	}
	for _, tt := range tests {
		if got := accept(tt.text); got != tt.want {
			t.Errorf("accept(%q) = %v, want %v", tt.text, got, tt.want)
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

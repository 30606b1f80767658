package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ringward/ringward/pkg/audio"
	audiomock "github.com/ringward/ringward/pkg/audio/mock"
	ttsmock "github.com/ringward/ringward/pkg/provider/tts/mock"
	"github.com/ringward/ringward/pkg/types"
)

// writeTestWAV writes a 16 kHz mono WAV of the given duration to a temp file.
func writeTestWAV(t *testing.T, d time.Duration) string {
	t.Helper()
	samples := int(d.Seconds() * 16000)
	pcm := make([]byte, samples*2)
	path := filepath.Join(t.TempDir(), "opening.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, 16000, 1), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSpeak(t *testing.T) {
	provider := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{{1, 2}, {3, 4}, {5, 6}},
	}
	out := &audiomock.Output{}
	p := New(provider, out)

	if err := p.Speak(context.Background(), "namaste"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := out.WrittenBytes(); len(got) != 6 {
		t.Errorf("wrote %d bytes, want 6", len(got))
	}
	if out.CallCountFlush != 1 {
		t.Errorf("flush count = %d, want 1", out.CallCountFlush)
	}
	if len(provider.SynthesizeStreamCalls) != 1 {
		t.Errorf("synthesize calls = %d, want 1", len(provider.SynthesizeStreamCalls))
	}
}

func TestSpeak_SynthesizeError(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeErr: errors.New("api down")}
	p := New(provider, &audiomock.Output{})

	if err := p.Speak(context.Background(), "namaste"); err == nil {
		t.Error("expected error")
	}
}

func TestSpeak_WriteErrorAborts(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}}
	out := &audiomock.Output{WriteErr: errors.New("device gone")}
	p := New(provider, out)

	if err := p.Speak(context.Background(), "namaste"); err == nil {
		t.Fatal("expected error")
	}
	if out.CallCountClose != 1 {
		t.Errorf("close count = %d, want 1 (buffer discard)", out.CallCountClose)
	}
}

func TestPlayFile_Completes(t *testing.T) {
	path := writeTestWAV(t, 500*time.Millisecond)
	out := &audiomock.Output{}
	p := New(&ttsmock.Provider{}, out)

	done, err := p.PlayFile(context.Background(), path)
	if err != nil {
		t.Fatalf("PlayFile: %v", err)
	}
	if !done {
		t.Error("done = false, want true for uninterrupted playback")
	}
	// 500 ms at 100 ms per chunk.
	if n := out.WriteCallCount(); n != 5 {
		t.Errorf("write calls = %d, want 5", n)
	}
	if got := len(out.WrittenBytes()); got != 16000 {
		t.Errorf("wrote %d bytes, want 16000", got)
	}
}

func TestPlayFile_CancelledMidway(t *testing.T) {
	path := writeTestWAV(t, 8*time.Second)
	out := &audiomock.Output{}
	p := New(&ttsmock.Provider{}, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := p.PlayFile(ctx, path)
	if err != nil {
		t.Fatalf("PlayFile: %v", err)
	}
	if done {
		t.Error("done = true, want false after cancellation")
	}
	if out.CallCountClose != 1 {
		t.Errorf("close count = %d, want 1 (buffer discard)", out.CallCountClose)
	}
	if out.CallCountFlush != 0 {
		t.Errorf("flush count = %d, want 0 on abort", out.CallCountFlush)
	}
}

// slowOutput paces each Write like a real device buffer so cancellation can
// land mid-file.
type slowOutput struct {
	audiomock.Output
	perWrite time.Duration
}

func (o *slowOutput) Write(ctx context.Context, pcm []byte) error {
	select {
	case <-time.After(o.perWrite):
	case <-ctx.Done():
		return ctx.Err()
	}
	return o.Output.Write(ctx, pcm)
}

func TestPlayFile_StopAborts(t *testing.T) {
	path := writeTestWAV(t, 8*time.Second)
	out := &slowOutput{perWrite: 20 * time.Millisecond}
	p := New(&ttsmock.Provider{}, out)

	result := make(chan bool, 1)
	go func() {
		done, _ := p.PlayFile(context.Background(), path)
		result <- done
	}()

	// Let playback get going, then stop it.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	p.Stop()

	select {
	case done := <-result:
		if done {
			t.Error("done = true, want false after Stop")
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("playback took %v to halt after Stop", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PlayFile did not return after Stop")
	}
}

func TestPlayFile_ConvertsToOutputFormat(t *testing.T) {
	// 8 kHz source, 16 kHz device: PlayFile must upsample before writing.
	samples := 4000 // 500 ms at 8 kHz
	pcm := make([]byte, samples*2)
	path := filepath.Join(t.TempDir(), "opening.wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, 8000, 1), 0o644); err != nil {
		t.Fatal(err)
	}

	out := &audiomock.Output{}
	p := New(&ttsmock.Provider{}, out,
		WithOutputFormat(audio.Format{SampleRate: 16000, Channels: 1}))

	done, err := p.PlayFile(context.Background(), path)
	if err != nil {
		t.Fatalf("PlayFile: %v", err)
	}
	if !done {
		t.Error("done = false, want true")
	}
	if got := len(out.WrittenBytes()); got != 16000 {
		t.Errorf("wrote %d bytes, want 16000 after upsampling", got)
	}
	// Chunking follows the device rate, not the file rate.
	if n := out.WriteCallCount(); n != 5 {
		t.Errorf("write calls = %d, want 5", n)
	}
}

func TestSetVoice_AppliesToNextUtterance(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}}
	p := New(provider, &audiomock.Output{})

	p.SetVoice(types.VoiceProfile{ID: "asha", SpeedFactor: 1.2})
	if err := p.Speak(context.Background(), "namaste"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(provider.SynthesizeStreamCalls) != 1 {
		t.Fatalf("synthesize calls = %d, want 1", len(provider.SynthesizeStreamCalls))
	}
	if got := provider.SynthesizeStreamCalls[0].Voice.ID; got != "asha" {
		t.Errorf("voice id = %q, want %q", got, "asha")
	}
}

func TestPlayFile_MissingFile(t *testing.T) {
	p := New(&ttsmock.Provider{}, &audiomock.Output{})
	if _, err := p.PlayFile(context.Background(), "/nonexistent/opening.wav"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPlayFile_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("not a wav file"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := New(&ttsmock.Provider{}, &audiomock.Output{})
	if _, err := p.PlayFile(context.Background(), path); err == nil {
		t.Error("expected error for invalid file")
	}
}

func TestStop_Idempotent(t *testing.T) {
	p := New(&ttsmock.Provider{}, &audiomock.Output{})
	p.Stop()
	p.Stop()
}

func TestDuration(t *testing.T) {
	path := writeTestWAV(t, 8*time.Second)
	p := New(&ttsmock.Provider{}, &audiomock.Output{})

	d, err := p.Duration(path)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 8*time.Second {
		t.Errorf("duration = %v, want 8s", d)
	}
}

// Package playback plays synthesized speech and pre-rendered audio files on
// the call's output device. Playback is context-abortable at roughly 100 ms
// granularity so a hangup halts the audio almost immediately.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ringward/ringward/pkg/audio"
	"github.com/ringward/ringward/pkg/provider/tts"
	"github.com/ringward/ringward/pkg/types"
)

// Option configures a Player.
type Option func(*Player)

// WithVoice sets the voice used by Speak.
func WithVoice(voice types.VoiceProfile) Option {
	return func(p *Player) {
		p.voice = voice
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Player) {
		p.log = log
	}
}

// WithOutputFormat declares the output device's fixed PCM format. Audio files
// in any other rate or channel count are converted before playback.
func WithOutputFormat(f audio.Format) Option {
	return func(p *Player) {
		p.target = f
	}
}

// Player renders speech and audio files to an output device.
// Safe for concurrent use, though callers play one thing at a time.
type Player struct {
	tts    tts.Provider
	output audio.Output
	target audio.Format
	log    *slog.Logger

	mu     sync.Mutex
	voice  types.VoiceProfile
	cancel context.CancelFunc
}

// New creates a Player over the given TTS provider and output device.
func New(provider tts.Provider, output audio.Output, opts ...Option) *Player {
	p := &Player{
		tts:    provider,
		output: output,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetVoice replaces the voice used by Speak. Applies to the next utterance.
func (p *Player) SetVoice(voice types.VoiceProfile) {
	p.mu.Lock()
	p.voice = voice
	p.mu.Unlock()
}

// Speak synthesizes text and plays it. Blocks until playback completes, ctx
// is cancelled, or Stop is called. On abort the device buffer is discarded.
func (p *Player) Speak(ctx context.Context, text string) error {
	ctx, done := p.begin(ctx)
	defer done()

	p.mu.Lock()
	voice := p.voice
	p.mu.Unlock()

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.tts.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	for chunk := range audioCh {
		if err := p.output.Write(ctx, chunk); err != nil {
			go audio.Drain(audioCh)
			p.abortOutput()
			return fmt.Errorf("play synthesized audio: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		p.abortOutput()
		return err
	}
	return p.output.Flush(ctx)
}

// PlayFile plays a 16-bit PCM WAV file. Data is written in ~100 ms chunks
// with the context checked between chunks, so cancellation halts playback
// within about one chunk. Returns true only if the whole file played.
func (p *Player) PlayFile(ctx context.Context, path string) (bool, error) {
	ctx, done := p.begin(ctx)
	defer done()

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read audio file: %w", err)
	}
	info, err := audio.ParseWAV(data)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}

	pcm := data[info.DataOffset : info.DataOffset+info.DataSize]
	rate, channels := info.SampleRate, info.Channels
	if p.target.SampleRate > 0 {
		conv := audio.FormatConverter{Target: p.target}
		frame := conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: rate, Channels: channels})
		pcm = frame.Data
		rate, channels = frame.SampleRate, frame.Channels
	}
	chunkSize := rate * channels * 2 / 10 // 100 ms
	if chunkSize <= 0 {
		chunkSize = len(pcm)
	}

	for offset := 0; offset < len(pcm); offset += chunkSize {
		if ctx.Err() != nil {
			p.abortOutput()
			return false, nil
		}
		end := offset + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := p.output.Write(ctx, pcm[offset:end]); err != nil {
			p.abortOutput()
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("play %s: %w", path, err)
		}
	}
	if err := p.output.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("flush %s: %w", path, err)
	}
	return true, nil
}

// Stop aborts the current playback, if any, and discards buffered audio.
// Idempotent; safe to call with nothing playing.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Duration returns the playback length of a WAV file from its header.
func (p *Player) Duration(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read audio file: %w", err)
	}
	d, err := audio.WAVDuration(data)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// begin derives a per-playback context that Stop can cancel.
func (p *Player) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	return ctx, func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}
}

// abortOutput drops whatever the device has buffered so an interrupted
// message stops sounding immediately instead of draining.
func (p *Player) abortOutput() {
	if err := p.output.Close(); err != nil {
		p.log.Warn("abort playback output", "error", err)
	}
}

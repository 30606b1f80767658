package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	defaultRecorderBinary = "arecord"
	// 30 ms of 16-bit mono at 16 kHz.
	defaultFrameBytes = 960
)

// ExecInputOption configures an ExecInput.
type ExecInputOption func(*ExecInput)

// WithRecorderBinary overrides the capture binary. The binary must emit raw
// signed 16-bit little-endian PCM on stdout ("arecord" does with -t raw).
func WithRecorderBinary(path string) ExecInputOption {
	return func(in *ExecInput) {
		in.binary = path
	}
}

// WithRecorderFormat sets the PCM format requested from the recorder process.
func WithRecorderFormat(sampleRate, channels int) ExecInputOption {
	return func(in *ExecInput) {
		in.sampleRate = sampleRate
		in.channels = channels
	}
}

// WithRecorderDevice selects the ALSA capture device (e.g. a loopback of the
// handset's USB audio).
func WithRecorderDevice(device string) ExecInputOption {
	return func(in *ExecInput) {
		in.device = device
	}
}

// ExecInput implements Input by spawning an external capture process and
// slicing its stdout into fixed-size frames.
type ExecInput struct {
	binary     string
	device     string
	sampleRate int
	channels   int

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecInput creates an ExecInput with the default recorder (arecord,
// 16 kHz mono).
func NewExecInput(opts ...ExecInputOption) *ExecInput {
	in := &ExecInput{
		binary:     defaultRecorderBinary,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

var _ Input = (*ExecInput)(nil)

// Start launches the recorder process and returns a channel of 30 ms frames.
// The channel closes when the process exits or ctx is cancelled. Start may be
// called once per ExecInput.
func (in *ExecInput) Start(ctx context.Context) (<-chan AudioFrame, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cmd != nil {
		return nil, errors.New("audio input already started")
	}

	cmd := exec.CommandContext(ctx, in.binary, in.recorderArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", in.binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", in.binary, err)
	}
	in.cmd = cmd

	frameBytes := in.sampleRate * in.channels * 2 * 30 / 1000
	if frameBytes <= 0 {
		frameBytes = defaultFrameBytes
	}

	frames := make(chan AudioFrame, 32)
	go in.readLoop(ctx, stdout, frames, frameBytes)
	return frames, nil
}

// Close kills the recorder process. The frame channel closes shortly after.
func (in *ExecInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cmd == nil {
		return nil
	}
	if in.cmd.Process != nil {
		_ = in.cmd.Process.Kill()
	}
	return nil
}

func (in *ExecInput) readLoop(ctx context.Context, r io.Reader, frames chan<- AudioFrame, frameBytes int) {
	defer close(frames)
	defer func() {
		in.mu.Lock()
		if in.cmd != nil {
			_ = in.cmd.Wait()
		}
		in.mu.Unlock()
	}()

	start := time.Now()
	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				slog.Warn("audio capture read failed", "binary", in.binary, "error", err)
			}
			return
		}
		frame := AudioFrame{
			Data:       append([]byte(nil), buf...),
			SampleRate: in.sampleRate,
			Channels:   in.channels,
			Timestamp:  time.Since(start),
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		default:
			// Consumer is behind; drop the frame rather than stall capture.
		}
	}
}

func (in *ExecInput) recorderArgs() []string {
	args := []string{
		"-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(in.sampleRate),
		"-c", strconv.Itoa(in.channels),
	}
	if in.device != "" {
		args = append(args, "-D", in.device)
	}
	return args
}

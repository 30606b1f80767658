package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

const (
	defaultPlayerBinary = "aplay"
	defaultSampleRate   = 16000
	defaultChannels     = 1
)

// ExecOutputOption configures an ExecOutput.
type ExecOutputOption func(*ExecOutput)

// WithPlayerBinary overrides the playback binary. The binary must accept raw
// signed 16-bit little-endian PCM on stdin ("aplay" and "ffplay" both do).
func WithPlayerBinary(path string) ExecOutputOption {
	return func(o *ExecOutput) {
		o.binary = path
	}
}

// WithPlayerFormat sets the PCM format announced to the player process.
func WithPlayerFormat(sampleRate, channels int) ExecOutputOption {
	return func(o *ExecOutput) {
		o.sampleRate = sampleRate
		o.channels = channels
	}
}

// ExecOutput implements Output by piping PCM to an external playback process.
// The process is started lazily on the first Write and restarted after Flush
// or a process failure. Safe for concurrent use.
type ExecOutput struct {
	binary     string
	sampleRate int
	channels   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewExecOutput creates an ExecOutput with the default player (aplay, 16 kHz
// mono).
func NewExecOutput(opts ...ExecOutputOption) *ExecOutput {
	o := &ExecOutput{
		binary:     defaultPlayerBinary,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ Output = (*ExecOutput)(nil)

// Write pipes pcm to the player process, starting it if necessary. A write
// failure tears the process down so the next Write starts fresh.
func (o *ExecOutput) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cmd == nil {
		if err := o.startLocked(); err != nil {
			return err
		}
	}
	if _, err := o.stdin.Write(pcm); err != nil {
		o.stopLocked()
		return fmt.Errorf("write to %s: %w", o.binary, err)
	}
	return nil
}

// Flush closes the player's stdin and waits for it to drain its buffer.
// The next Write starts a new process.
func (o *ExecOutput) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cmd == nil {
		return nil
	}
	_ = o.stdin.Close()
	waitErr := o.cmd.Wait()
	o.cmd = nil
	o.stdin = nil
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", o.binary, waitErr)
	}
	return nil
}

// Close kills any running player process immediately, discarding buffered
// audio.
func (o *ExecOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	return nil
}

func (o *ExecOutput) startLocked() error {
	args := o.playerArgs()
	cmd := exec.Command(o.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe for %s: %w", o.binary, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", o.binary, err)
	}
	o.cmd = cmd
	o.stdin = stdin
	return nil
}

func (o *ExecOutput) stopLocked() {
	if o.cmd == nil {
		return
	}
	_ = o.stdin.Close()
	if o.cmd.Process != nil {
		_ = o.cmd.Process.Kill()
	}
	_ = o.cmd.Wait()
	o.cmd = nil
	o.stdin = nil
}

// playerArgs builds the raw-PCM stdin arguments for the known players.
// Unknown binaries get no arguments and must be configured via wrapper
// scripts.
func (o *ExecOutput) playerArgs() []string {
	rate := strconv.Itoa(o.sampleRate)
	ch := strconv.Itoa(o.channels)
	switch o.binary {
	case "aplay":
		return []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch}
	case "ffplay":
		return []string{
			"-loglevel", "quiet", "-nodisp", "-autoexit",
			"-f", "s16le", "-ar", rate, "-ch_layout", layoutName(o.channels),
			"-i", "pipe:0",
		}
	default:
		return nil
	}
}

func layoutName(channels int) string {
	if channels == 2 {
		return "stereo"
	}
	return "mono"
}

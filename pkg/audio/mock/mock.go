// Package mock provides in-memory mock implementations of the [audio.Input]
// and [audio.Output] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.AudioFrame, 16)
//	in := &mock.Input{Frames: frames}
//	got, err := in.Start(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/ringward/ringward/pkg/audio"
)

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock implementation of [audio.Input].
// Set the exported fields before use; inspect the Call* fields after.
type Input struct {
	mu sync.Mutex

	// Frames is the channel returned by [Input.Start].
	// Defaults to a closed channel if left nil.
	Frames chan audio.AudioFrame

	// StartErr is the error returned by [Input.Start].
	StartErr error

	// CloseErr is the error returned by [Input.Close].
	CloseErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Start implements [audio.Input]. Returns Frames / StartErr.
// If Frames is nil, a closed channel is returned so range loops terminate.
func (in *Input) Start(_ context.Context) (<-chan audio.AudioFrame, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.CallCountStart++
	if in.StartErr != nil {
		return nil, in.StartErr
	}
	if in.Frames == nil {
		ch := make(chan audio.AudioFrame)
		close(ch)
		return ch, nil
	}
	return in.Frames, nil
}

// Close implements [audio.Input]. Returns CloseErr.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.CallCountClose++
	return in.CloseErr
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock implementation of [audio.Output]. Every Write appends the
// PCM bytes to Written so tests can assert on the exact playback payload.
type Output struct {
	mu sync.Mutex

	// WriteErr is returned by [Output.Write].
	WriteErr error

	// FlushErr is returned by [Output.Flush].
	FlushErr error

	// CloseErr is returned by [Output.Close].
	CloseErr error

	// Written records the pcm argument of every Write call, in order.
	Written [][]byte

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Write implements [audio.Output]. Records a copy of pcm and returns WriteErr.
// Returns the context error first if ctx is already cancelled.
func (o *Output) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	o.Written = append(o.Written, cp)
	return o.WriteErr
}

// Flush implements [audio.Output]. Returns FlushErr.
func (o *Output) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountFlush++
	return o.FlushErr
}

// Close implements [audio.Output]. Returns CloseErr.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return o.CloseErr
}

// WrittenBytes returns all recorded Write payloads concatenated in order.
func (o *Output) WrittenBytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	var total int
	for _, b := range o.Written {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range o.Written {
		out = append(out, b...)
	}
	return out
}

// WriteCallCount returns the number of recorded Write calls.
func (o *Output) WriteCallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Written)
}

var (
	_ audio.Input  = (*Input)(nil)
	_ audio.Output = (*Output)(nil)
)

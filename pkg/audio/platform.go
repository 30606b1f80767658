// Package audio defines the interfaces and types for audio device connectivity
// and PCM stream handling within ringward.
//
// The two primary abstractions are:
//
//   - [Input] — captures the far-end call audio (the phone's speaker routed
//     back into the host, e.g. via an ALSA loopback device) as a stream of
//     [AudioFrame] values.
//   - [Output] — plays synthesised speech and pre-recorded prompts into the
//     phone's microphone path.
//
// Implementations wrap platform-specific capture/playback tools (arecord,
// aplay, ffmpeg). The interfaces are intentionally narrow to keep the call
// orchestrator decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement [Input] and [Output].
package audio

import (
	"context"
)

// Input captures audio from a device and delivers it as a frame stream.
//
// Implementations must be safe for concurrent use.
type Input interface {
	// Start begins capture and returns a read-only channel of [AudioFrame]
	// values. The channel is closed when ctx is cancelled, Close is called,
	// or the underlying device fails.
	//
	// Start may be called only once per Input; subsequent calls return an error.
	Start(ctx context.Context) (<-chan AudioFrame, error)

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}

// Output plays PCM audio to a device.
//
// Implementations must be safe for concurrent use, though callers normally
// serialise playback: the orchestrator never speaks two things at once.
type Output interface {
	// Write plays a chunk of raw 16-bit little-endian PCM. It blocks until the
	// chunk has been handed to the device or ctx is cancelled.
	Write(ctx context.Context, pcm []byte) error

	// Flush blocks until all written audio has actually been played out.
	Flush(ctx context.Context) error

	// Close stops playback immediately, discarding any buffered audio, and
	// releases the device. Safe to call more than once.
	Close() error
}

package audio

import "github.com/ringward/ringward/pkg/types"

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the input device,
// processed by VAD and the acoustic detector, and played through the output device.
type AudioFrame = types.AudioFrame

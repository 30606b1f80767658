package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/ringward/ringward/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms of 16kHz mono
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Errorf("header starts with %q, want RIFF", wav[0:4])
	}
	if string(wav[8:12]) != "WAVE" {
		t.Errorf("format = %q, want WAVE", wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestParseWAV_RoundTrip(t *testing.T) {
	pcm := make([]byte, 16000*2) // 1s of 16kHz mono
	wav := audio.EncodeWAV(pcm, 16000, 1)

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Channels = %d, want 1", info.Channels)
	}
	if info.DataOffset != 44 {
		t.Errorf("DataOffset = %d, want 44", info.DataOffset)
	}
	if info.DataSize != len(pcm) {
		t.Errorf("DataSize = %d, want %d", info.DataSize, len(pcm))
	}
}

func TestParseWAV_ExtraChunkBeforeData(t *testing.T) {
	pcm := make([]byte, 100)
	wav := audio.EncodeWAV(pcm, 44100, 2)

	// Splice a LIST chunk between fmt and data.
	list := make([]byte, 8+6)
	copy(list[0:4], "LIST")
	binary.LittleEndian.PutUint32(list[4:8], 6)
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	binary.LittleEndian.PutUint32(spliced[4:8], uint32(len(spliced)-8))

	info, err := audio.ParseWAV(spliced)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", info.SampleRate)
	}
	if info.Channels != 2 {
		t.Errorf("Channels = %d, want 2", info.Channels)
	}
	if info.DataSize != len(pcm) {
		t.Errorf("DataSize = %d, want %d", info.DataSize, len(pcm))
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte("RIFF")},
		{"not riff", []byte("JUNKJUNKJUNKJUNK")},
		{"riff not wave", append([]byte("RIFF\x00\x00\x00\x00"), []byte("JUNK")...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := audio.ParseWAV(tc.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseWAV_TruncatedData(t *testing.T) {
	pcm := make([]byte, 1000)
	wav := audio.EncodeWAV(pcm, 16000, 1)
	truncated := wav[:44+500]

	info, err := audio.ParseWAV(truncated)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataSize != 500 {
		t.Errorf("DataSize = %d, want 500 (clamped to available bytes)", info.DataSize)
	}
}

func TestWAVDuration(t *testing.T) {
	// 8 seconds of 16kHz mono PCM.
	pcm := make([]byte, 8*16000*2)
	wav := audio.EncodeWAV(pcm, 16000, 1)

	d, err := audio.WAVDuration(wav)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if d != 8*time.Second {
		t.Errorf("duration = %v, want 8s", d)
	}
}

func TestWAVInfo_Duration_ZeroFormat(t *testing.T) {
	var info audio.WAVInfo
	if d := info.Duration(); d != 0 {
		t.Errorf("duration = %v, want 0", d)
	}
}

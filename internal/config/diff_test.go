package config_test

import (
	"testing"
	"time"

	"github.com/ringward/ringward/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Call: config.CallConfig{
			OpeningAudio: "opening.wav",
			Farewell:     "namaste",
		},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.CallChanged {
		t.Error("expected CallChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_ConversationToggled(t *testing.T) {
	t.Parallel()
	old := &config.Config{Call: config.CallConfig{ConversationEnabled: true}}
	new := &config.Config{Call: config.CallConfig{ConversationEnabled: false}}

	d := config.Diff(old, new)
	if !d.CallChanged {
		t.Error("expected CallChanged=true")
	}
	if !d.Call.ConversationChanged {
		t.Error("expected ConversationChanged=true")
	}
	if d.Call.BreakersChanged {
		t.Error("expected BreakersChanged=false")
	}
}

func TestDiff_BreakersChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Call: config.CallConfig{
		MaxDuration:        config.Duration(3 * time.Minute),
		SilenceTimeout:     config.Duration(20 * time.Second),
		MaxIrrelevantTurns: 4,
	}}
	new := &config.Config{Call: config.CallConfig{
		MaxDuration:        config.Duration(5 * time.Minute),
		SilenceTimeout:     config.Duration(20 * time.Second),
		MaxIrrelevantTurns: 4,
	}}

	d := config.Diff(old, new)
	if !d.CallChanged {
		t.Error("expected CallChanged=true")
	}
	if !d.Call.BreakersChanged {
		t.Error("expected BreakersChanged=true")
	}
}

func TestDiff_FarewellChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Call: config.CallConfig{Farewell: "namaste"}}
	new := &config.Config{Call: config.CallConfig{Farewell: "shubh din"}}

	d := config.Diff(old, new)
	if !d.Call.FarewellChanged {
		t.Error("expected FarewellChanged=true")
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Call: config.CallConfig{
		Voice: config.VoiceConfig{VoiceID: "v1", SpeedFactor: 1.0},
	}}
	new := &config.Config{Call: config.CallConfig{
		Voice: config.VoiceConfig{VoiceID: "v2", SpeedFactor: 1.0},
	}}

	d := config.Diff(old, new)
	if !d.Call.VoiceChanged {
		t.Error("expected VoiceChanged=true")
	}
}

func TestDiff_OpeningChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Call: config.CallConfig{OpeningAudio: "a.wav"}}
	new := &config.Config{Call: config.CallConfig{OpeningAudio: "b.wav"}}

	d := config.Diff(old, new)
	if !d.CallChanged {
		t.Error("expected CallChanged=true")
	}
	if !d.Call.OpeningChanged {
		t.Error("expected OpeningChanged=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Call: config.CallConfig{
			Farewell:     "namaste",
			OpeningAudio: "a.wav",
		},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Call: config.CallConfig{
			Farewell:     "shubh din",
			OpeningAudio: "b.wav",
		},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.CallChanged {
		t.Error("expected CallChanged=true")
	}
	if !d.Call.FarewellChanged {
		t.Error("expected FarewellChanged=true")
	}
	if !d.Call.OpeningChanged {
		t.Error("expected OpeningChanged=true")
	}
}

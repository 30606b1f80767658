package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "openai-native", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Conditions
// the service can survive (e.g. missing LLM credentials, which degrade the
// call flow to audio-only) are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Detector
	if cfg.Detector.Mode != "" && !cfg.Detector.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("detector.mode %q is invalid; valid values: probe, acoustic", cfg.Detector.Mode))
	}
	if cfg.Detector.ADB.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("detector.adb.poll_interval must not be negative"))
	}
	if cfg.Detector.ADB.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("detector.adb.command_timeout must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	for kind, entry := range map[string]ProviderEntry{
		"llm": cfg.Providers.LLM,
		"stt": cfg.Providers.STT,
		"tts": cfg.Providers.TTS,
	} {
		for _, fb := range entry.Fallbacks {
			validateProviderName(kind, fb.Name)
			if len(fb.Fallbacks) > 0 {
				errs = append(errs, fmt.Errorf("providers.%s: fallback %q must not declare its own fallbacks", kind, fb.Name))
			}
		}
	}

	// Call
	if cfg.Call.OpeningAudio == "" {
		errs = append(errs, fmt.Errorf("call.opening_audio is required"))
	}
	if cfg.Call.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("call.max_duration must not be negative"))
	}
	if cfg.Call.SilenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("call.silence_timeout must not be negative"))
	}
	if cfg.Call.MaxIrrelevantTurns < 0 {
		errs = append(errs, fmt.Errorf("call.max_irrelevant_turns must not be negative"))
	}
	if sf := cfg.Call.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("call.voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}

	// Conversation availability — degraded audio-only mode is survivable.
	if cfg.Call.ConversationEnabled {
		if cfg.Providers.LLM.Name == "" {
			slog.Warn("call.conversation_enabled is set but providers.llm is not configured; calls will run in audio-only mode")
		} else if cfg.Providers.LLM.APIKey == "" && needsAPIKey(cfg.Providers.LLM.Name) {
			slog.Warn("providers.llm has no api_key; calls will run in audio-only mode",
				"provider", cfg.Providers.LLM.Name)
		}
		if cfg.Providers.STT.Name == "" {
			slog.Warn("call.conversation_enabled is set but providers.stt is not configured; the callee cannot be heard")
		}
		if cfg.Providers.TTS.Name == "" {
			slog.Warn("call.conversation_enabled is set but providers.tts is not configured; replies cannot be spoken")
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must not be negative"))
	}

	return errors.Join(errs...)
}

// needsAPIKey reports whether the named LLM provider requires credentials.
// Local backends run without a key.
func needsAPIKey(name string) bool {
	switch name {
	case "ollama", "llamacpp", "llamafile":
		return false
	}
	return true
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// Package config provides the configuration schema, loader, provider
// registry, and hot-reload watcher for the ringward call automation service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DetectorMode selects how call lifecycle events are observed.
type DetectorMode string

const (
	// DetectorProbe polls the handset over ADB for telephony state.
	DetectorProbe DetectorMode = "probe"

	// DetectorAcoustic infers call state from line audio alone.
	DetectorAcoustic DetectorMode = "acoustic"
)

// IsValid reports whether m is a recognised detector mode.
func (m DetectorMode) IsValid() bool {
	return m == DetectorProbe || m == DetectorAcoustic
}

// Duration wraps time.Duration with YAML support for strings like "300ms".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure for ringward.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detector  DetectorConfig  `yaml:"detector"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Call      CallConfig      `yaml:"call"`
	Results   ResultsConfig   `yaml:"results"`
}

// ServerConfig holds network and logging settings for the health/metrics
// server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogJSON switches the log output from text to JSON.
	LogJSON bool `yaml:"log_json"`
}

// DetectorConfig selects and tunes the call lifecycle detector.
type DetectorConfig struct {
	// Mode picks the detector: "probe" (ADB polling) or "acoustic".
	Mode DetectorMode `yaml:"mode"`

	// ADB tunes the probe transport. Ignored in acoustic mode.
	ADB ADBConfig `yaml:"adb"`

	// PushEnabled also mounts the HTTP push endpoints so the handset app can
	// report lifecycle events directly instead of being polled.
	PushEnabled bool `yaml:"push_enabled"`
}

// ADBConfig tunes the ADB probe transport.
type ADBConfig struct {
	// Path is the adb binary. Defaults to "adb" on PATH.
	Path string `yaml:"path"`

	// PollInterval is the telephony state polling period. Defaults to 300ms.
	PollInterval Duration `yaml:"poll_interval"`

	// CommandTimeout bounds each individual adb invocation. Defaults to 5s.
	CommandTimeout Duration `yaml:"command_timeout"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists providers tried in order when this one fails or its
	// circuit breaker is open. Fallback entries cannot nest further fallbacks.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// AudioConfig describes the capture and playback devices on the host.
type AudioConfig struct {
	// InputDevice is the ALSA capture device carrying the call's downlink
	// audio (e.g., "hw:Loopback,1"). Empty uses the system default.
	InputDevice string `yaml:"input_device"`

	// OutputBinary is the playback program fed raw PCM on stdin.
	// Defaults to "aplay".
	OutputBinary string `yaml:"output_binary"`

	// SampleRate is the PCM sample rate for both directions. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`
}

// CallConfig tunes the per-call behaviour of the orchestrator.
type CallConfig struct {
	// OpeningAudio is the pre-rendered WAV played right after pickup. Required.
	OpeningAudio string `yaml:"opening_audio"`

	// ConversationEnabled turns on the spoken AI conversation after the
	// opening message.
	ConversationEnabled bool `yaml:"conversation_enabled"`

	// MaxDuration is the hard cap on conversation length. Defaults to 180s.
	MaxDuration Duration `yaml:"max_duration"`

	// SilenceTimeout ends the conversation when the callee says nothing for
	// this long. Defaults to 20s.
	SilenceTimeout Duration `yaml:"silence_timeout"`

	// MaxIrrelevantTurns ends the conversation after this many consecutive
	// replies where the model could not engage. Defaults to 4.
	MaxIrrelevantTurns int `yaml:"max_irrelevant_turns"`

	// Language is the BCP-47 tag for recognition and synthesis (e.g., "hi").
	Language string `yaml:"language"`

	// Farewell is spoken best-effort before ending the call.
	Farewell string `yaml:"farewell"`

	// SilenceMessage is spoken instead of the farewell when the callee has
	// gone quiet for the silence timeout.
	SilenceMessage string `yaml:"silence_message"`

	// Voice configures the TTS voice.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// ResultsConfig holds settings for the call-result store.
type ResultsConfig struct {
	// DBPath is the SQLite database file. Defaults to "ringward.db".
	// Use ":memory:" for an ephemeral store.
	DBPath string `yaml:"db_path"`
}

package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything touching
// providers, devices, or the detector requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CallChanged is true if any hot-reloadable call knob changed.
	CallChanged bool
	Call        CallDiff
}

// CallDiff describes which per-call knobs changed between two configs.
type CallDiff struct {
	ConversationChanged bool
	BreakersChanged     bool
	FarewellChanged     bool
	VoiceChanged        bool
	OpeningChanged      bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.Call = diffCall(&old.Call, &new.Call)
	if d.Call != (CallDiff{}) {
		d.CallChanged = true
	}

	return d
}

func diffCall(old, new *CallConfig) CallDiff {
	cd := CallDiff{}

	if old.ConversationEnabled != new.ConversationEnabled {
		cd.ConversationChanged = true
	}
	if old.MaxDuration != new.MaxDuration ||
		old.SilenceTimeout != new.SilenceTimeout ||
		old.MaxIrrelevantTurns != new.MaxIrrelevantTurns {
		cd.BreakersChanged = true
	}
	if old.Farewell != new.Farewell || old.SilenceMessage != new.SilenceMessage {
		cd.FarewellChanged = true
	}
	if old.Voice != new.Voice {
		cd.VoiceChanged = true
	}
	if old.OpeningAudio != new.OpeningAudio {
		cd.OpeningChanged = true
	}

	return cd
}

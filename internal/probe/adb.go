package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ringward/ringward/internal/callerr"
)

const (
	defaultADBPath        = "adb"
	defaultCommandTimeout = 5 * time.Second

	// Side-channel file the handset app writes the currently dialed number to.
	numberFilePath = "/sdcard/Android/data/com.callingagent.app/files/current_number.txt"

	endCallAction   = "com.callingagent.END_CALL"
	endCallReceiver = "com.callingagent.app/.receiver.PCCommandReceiver"
)

// Transport is the command channel to the tethered device. Implementations
// must be safe for concurrent use; the poller and the orchestrator both hold
// a reference.
type Transport interface {
	// QueryCallState returns the raw telephony status dump.
	QueryCallState(ctx context.Context) (string, error)

	// ReadNumberFile returns the side-channel current-number file contents.
	ReadNumberFile(ctx context.Context) (string, error)

	// SendEndCall instructs the device to terminate the active call.
	SendEndCall(ctx context.Context) error
}

// ADBOption configures an ADB transport.
type ADBOption func(*ADB)

// WithADBPath overrides the adb binary path.
func WithADBPath(path string) ADBOption {
	return func(a *ADB) {
		a.adbPath = path
	}
}

// WithCommandTimeout bounds every individual adb invocation.
func WithCommandTimeout(d time.Duration) ADBOption {
	return func(a *ADB) {
		a.timeout = d
	}
}

// ADB implements Transport over the adb command-line tool. Every call shells
// out; there is no persistent connection, so a device that disappears and
// returns needs no reconnect handling here.
type ADB struct {
	adbPath string
	timeout time.Duration
}

// NewADB creates an ADB transport with default binary path and timeout.
func NewADB(opts ...ADBOption) *ADB {
	a := &ADB{
		adbPath: defaultADBPath,
		timeout: defaultCommandTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var _ Transport = (*ADB)(nil)

// QueryCallState runs "adb shell dumpsys telephony.registry".
func (a *ADB) QueryCallState(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "shell", "dumpsys", "telephony.registry")
	if err != nil {
		return "", fmt.Errorf("query call state: %w: %w", callerr.ErrTransientProbe, err)
	}
	return out, nil
}

// ReadNumberFile reads the handset app's current-number side channel.
func (a *ADB) ReadNumberFile(ctx context.Context) (string, error) {
	out, err := a.run(ctx, "shell", "cat", numberFilePath)
	if err != nil {
		return "", fmt.Errorf("read number file: %w: %w", callerr.ErrTransientProbe, err)
	}
	return strings.TrimSpace(out), nil
}

// SendEndCall broadcasts the end-call intent to the handset app's receiver.
func (a *ADB) SendEndCall(ctx context.Context) error {
	_, err := a.run(ctx, "shell", "am", "broadcast",
		"-a", endCallAction,
		"-n", endCallReceiver)
	if err != nil {
		return fmt.Errorf("send end call: %w", err)
	}
	return nil
}

// run executes one adb command with the transport timeout applied on top of
// the caller's context.
func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.adbPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("adb %s: %s: %w", args[0], msg, err)
		}
		return "", fmt.Errorf("adb %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

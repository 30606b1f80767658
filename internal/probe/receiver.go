package probe

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ringward/ringward/internal/call"
)

// pushEvent is the JSON body accepted by the push receiver routes.
type pushEvent struct {
	Number    string `json:"number"`
	Direction string `json:"direction"`
}

// Receiver is the push-based probe variant: instead of this process polling
// the device, the handset app posts lifecycle transitions to a small HTTP
// surface. Both variants feed the same machine, so the orchestrator never
// knows which one is active.
type Receiver struct {
	machine *call.Machine
	log     *slog.Logger
}

// NewReceiver creates a push receiver feeding machine.
func NewReceiver(machine *call.Machine, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{machine: machine, log: log}
}

// Register installs the push routes on mux.
func (r *Receiver) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /call/ringing", r.handle(call.Ringing))
	mux.HandleFunc("POST /call/active", r.handle(call.Active))
	mux.HandleFunc("POST /call/ended", r.handle(call.Idle))
	mux.HandleFunc("POST /call/idle", r.handle(call.Idle))
}

// handle builds the handler for one target state. Bodies are optional;
// a missing or malformed body still applies the transition with no number,
// because a hangup notification must never be dropped over a JSON error.
func (r *Receiver) handle(state call.State) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var ev pushEvent
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			r.log.Debug("push event without parseable body", "path", req.URL.Path, "error", err)
		}

		dir := call.Outgoing
		if ev.Direction == "incoming" {
			dir = call.Incoming
		}

		r.machine.Apply(call.Signal{
			State:      state,
			Number:     ev.Number,
			Direction:  dir,
			ObservedAt: time.Now(),
		})

		w.WriteHeader(http.StatusNoContent)
	}
}

package relay

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/zynerotech/eventrelay/transport"
)

// Identity is the (server, application) pair this process raises events
// under. Inbound envelopes carrying the same pair are our own echoes.
type Identity struct {
	ServerName      string `json:"server_name"`
	ApplicationName string `json:"application_name"`
}

// DefaultIdentity uses the machine hostname and the given application name.
// An empty application name is replaced with a random per-process ID so two
// instances on one host never mistake each other for themselves.
func DefaultIdentity(applicationName string) (Identity, error) {
	host, err := os.Hostname()
	if err != nil {
		return Identity{}, fmt.Errorf("resolve hostname: %w", err)
	}
	if applicationName == "" {
		applicationName = uuid.NewString()
	}
	return Identity{ServerName: host, ApplicationName: applicationName}, nil
}

// Origin returns the identity in the form envelopes carry.
func (id Identity) Origin() transport.Origin {
	return transport.Origin{ServerName: id.ServerName, ApplicationName: id.ApplicationName}
}

// Owns reports whether e was raised by this identity.
func (id Identity) Owns(e transport.Envelope) bool {
	return e.Origin() == id.Origin()
}

// Package channel implements the transport listeners that watch for wake
// commands and feed the dispatch pipeline.
package channel

import (
	"context"
	"runtime"

	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/task"
)

// Listener is the contract every transport implementation satisfies.
type Listener interface {
	Name() string

	// CheckDependencies verifies required credentials and resources are
	// present. It never panics; all failure is reported through the pair so
	// the orchestrator can aggregate uniformly.
	CheckDependencies() (bool, string)

	// Start blocks until Stop is called or an unrecoverable error occurs.
	// The listener suspends while waiting for messages and marks a source
	// message consumed only after a successful dispatch.
	Start(ctx context.Context) error

	// Stop requests cooperative shutdown; Start's loop exits within one
	// timeout cycle.
	Stop() error

	// State reports the current lifecycle state for status logging.
	State() State
}

// Registration describes a listener implementation that may run on this
// host. Availability is a property of the registration, consulted before
// instantiation.
type Registration struct {
	Name string

	// Platforms lists the GOOS values the channel supports. Empty means all.
	Platforms []string

	New func(cfg *config.Config, dispatch task.Dispatcher) Listener
}

// Available reports whether the channel supports the current platform.
func (r Registration) Available() bool {
	if len(r.Platforms) == 0 {
		return true
	}
	for _, p := range r.Platforms {
		if p == runtime.GOOS {
			return true
		}
	}
	return false
}

// Registrations returns the built-in channels.
func Registrations() []Registration {
	return []Registration{
		{
			Name: "email",
			New: func(cfg *config.Config, d task.Dispatcher) Listener {
				return NewEmail(cfg.Channels.Email, d)
			},
		},
		{
			Name: "webchat",
			New: func(cfg *config.Config, d task.Dispatcher) Listener {
				return NewWebchat(cfg.Channels.Webchat, d)
			},
		},
		{
			Name:      "native-message",
			Platforms: []string{"darwin"},
			New: func(cfg *config.Config, d task.Dispatcher) Listener {
				return NewNativeMessage(cfg.Channels.NativeMessage, cfg.NativeDBPath(), d)
			},
		},
	}
}

// IsAllowed checks if a sender is in the allow list.
// Empty allow list means everyone is allowed.
func IsAllowed(sender string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, a := range allowList {
		if a == sender {
			return true
		}
	}
	return false
}

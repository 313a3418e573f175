package engine

import (
	"context"
	"fmt"
	"os/exec"
)

// SessionLocker locks the local workstation.
type SessionLocker interface {
	Lock(ctx context.Context) error
}

// NopLocker does nothing. Used when locking is disabled or unsupported.
type NopLocker struct{}

func (NopLocker) Lock(context.Context) error { return nil }

// CommandLocker runs an OS command to lock the session.
type CommandLocker struct {
	Name string
	Args []string
}

func (c CommandLocker) Lock(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", c.Name, err, out)
	}
	return nil
}

// NewSessionLocker returns the platform locker, or NopLocker when disabled.
func NewSessionLocker(enabled bool) SessionLocker {
	if !enabled {
		return NopLocker{}
	}
	return platformLocker()
}

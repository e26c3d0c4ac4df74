package agent

import (
	"fmt"

	"github.com/pkg/errors"
)

// PermissionScope identifies which positioning permission was involved.
type PermissionScope string

const (
	PermissionForeground PermissionScope = "foreground"
	PermissionBackground PermissionScope = "background"
)

// PermissionDeniedError reports a refused positioning permission. Background
// denial is the common real-world failure, so it carries remediation text the
// UI can show the operator verbatim.
type PermissionDeniedError struct {
	Scope       PermissionScope
	Remediation string
}

func (e *PermissionDeniedError) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("%s location permission denied: %s", e.Scope, e.Remediation)
	}
	return fmt.Sprintf("%s location permission denied", e.Scope)
}

// BackgroundRemediation is the default remediation text for a denied
// background permission.
const BackgroundRemediation = `location access must be set to "allow all the time" in system settings for tracking to continue off-screen`

// ErrCapabilityUnavailable is returned by a location provider that cannot
// deliver fixes while the process is backgrounded. It is not a failure; the
// tracker falls back to foreground-only acquisition.
var ErrCapabilityUnavailable = errors.New("background acquisition capability unavailable")

// ErrNotRegistered is returned for operations that need a registered
// operator before any registration has happened.
var ErrNotRegistered = errors.New("no operator is registered")

// ErrShiftActive is returned when unregistering is attempted during an
// active shift.
var ErrShiftActive = errors.New("cannot unregister while a shift is active")

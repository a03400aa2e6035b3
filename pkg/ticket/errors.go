package ticket

import "errors"

var (
	// ErrHierarchyViolation is returned when a ticket is created or moved
	// under a parent of the wrong level.
	ErrHierarchyViolation = errors.New("HIERARCHY_VIOLATION")

	// ErrTransitionNotAllowed is returned when no rule permits the
	// requested status change.
	ErrTransitionNotAllowed = errors.New("transition not allowed")

	// ErrStatusViaUpdate is returned when Update tries to change status.
	// Status changes go through ExecuteTransition.
	ErrStatusViaUpdate = errors.New("status cannot be changed via update")

	// ErrDependencyCycle is returned when a parent chain loops.
	ErrDependencyCycle = errors.New("ticket hierarchy cycle")

	// ErrNoTicketReady is returned by GetNextTicketForAgent when no ready
	// ticket matches the role.
	ErrNoTicketReady = errors.New("no ticket ready")
)

package migration

import (
	"errors"
	"fmt"
)

var (
	ErrBusy             = errors.New("a migration is already running")
	ErrNotConnected     = errors.New("controller is not connected")
	ErrFailed           = errors.New("controller has failed, disconnect and connect again")
	ErrPartialMigration = errors.New("partial migration")
	ErrMigrationFailed  = errors.New("migration failed")
	ErrPermission       = errors.New("permission denied")
)

// PartialMigrationError describes a migration where some, but not all,
// digests failed. It is attached to the Result, not returned.
type PartialMigrationError struct {
	Succeeded int
	Failures  []Outcome
}

func (e *PartialMigrationError) Error() string {
	return fmt.Sprintf(
		"%d of %d digests failed to migrate",
		len(e.Failures),
		len(e.Failures)+e.Succeeded,
	)
}

func (e *PartialMigrationError) Is(target error) bool { return target == ErrPartialMigration }

// MigrationFailedError is returned when every matched digest failed.
type MigrationFailedError struct {
	Failures []Outcome
}

func (e *MigrationFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "migration failed"
	}
	return fmt.Sprintf("all %d digests failed to migrate, first: %s", len(e.Failures), e.Failures[0].Reason)
}

func (e *MigrationFailedError) Is(target error) bool { return target == ErrMigrationFailed }

// Unwrap exposes the first failure so callers can match its kind.
func (e *MigrationFailedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0].Err
}

// PermissionError is returned when the operator account is not the target
// ledger's administrative account.
type PermissionError struct {
	Operator string
	Admin    string
}

func (e *PermissionError) Error() string {
	if e.Admin == "" {
		return fmt.Sprintf("operator %s is not the admin account: target has no admin key", e.Operator)
	}
	return fmt.Sprintf("operator %s is not the admin account %s", e.Operator, e.Admin)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

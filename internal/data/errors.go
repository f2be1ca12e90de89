package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Profile repository sentinels.
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")

	// Role repository sentinels.
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyHeld   = errors.New("role already assigned")
	ErrSubjectIDRequired = errors.New("subject id is required")

	// Credential repository sentinels.
	ErrCredentialNotFound = errors.New("credential not found")
	ErrEmailTaken         = errors.New("email already registered")

	// Notification repository sentinels.
	ErrNotificationNotFound = errors.New("notification not found")
)

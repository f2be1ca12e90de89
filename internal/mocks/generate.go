// Package mocks provides gomock implementations of the repository ports for service tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileRepository(ctrl)
//	profiles.EXPECT().GetByID(gomock.Any(), subjectID).Return(profile, nil)
package mocks

// Generate mock for ProfileRepository interface from internal/ports package.
// This creates MockProfileRepository with methods for all ProfileRepository interface methods:
// GetByID, Create, Update, TouchLastLogin
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_repository_mock.go github.com/siprak/portal/internal/ports ProfileRepository

// Generate mock for RoleRepository interface from internal/ports package.
// This creates MockRoleRepository with methods for all RoleRepository interface methods:
// ListActiveAssignments, GetByCode, Assign
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_repository_mock.go github.com/siprak/portal/internal/ports RoleRepository

// Generate mock for PermissionRepository interface from internal/ports package.
// This creates MockPermissionRepository with methods for all PermissionRepository interface methods:
// ListCodesByRoleIDs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=permission_repository_mock.go github.com/siprak/portal/internal/ports PermissionRepository

// Generate mock for NotificationRepository interface from internal/ports package.
// This creates MockNotificationRepository with methods for all NotificationRepository interface methods:
// ListBySubject, MarkRead, MarkAllRead, Delete, DeleteAll, Insert
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=notification_repository_mock.go github.com/siprak/portal/internal/ports NotificationRepository

package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/siprak/portal/internal/data"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	apperrors "github.com/siprak/portal/internal/errors"
	"github.com/siprak/portal/internal/ports"
	"golang.org/x/sync/errgroup"
)

var _ ports.SnapshotResolver = (*Resolver)(nil)

// ResolverOptions groups dependencies for Resolver.
type ResolverOptions struct {
	Profiles    ports.ProfileRepository    // Required
	Roles       ports.RoleRepository       // Required
	Permissions ports.PermissionRepository // Required
	Logger      *slog.Logger               // Optional: structured logger
}

// Resolver builds authorization snapshots from the profile, role and permission tables.
// It only reads and is safe for concurrent use.
type Resolver struct {
	profiles    ports.ProfileRepository
	roles       ports.RoleRepository
	permissions ports.PermissionRepository
	logger      *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Profiles == nil || opts.Roles == nil || opts.Permissions == nil {
		return nil, errors.New("profile, role and permission repositories are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		profiles:    opts.Profiles,
		roles:       opts.Roles,
		permissions: opts.Permissions,
		logger:      logger.With("component", "resolver"),
	}, nil
}

// Resolve loads the subject's profile and active roles concurrently, then the permission
// grants of those roles in one batch. A missing profile fails with ProfileNotFound; other
// read failures fail with a Resolution error. No partial snapshot is ever returned.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (domainauth.Snapshot, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return domainauth.Snapshot{}, apperrors.ValidationField("subject_id", "subject id is required")
	}

	var (
		profile     *domainauth.Profile
		assignments []domainauth.RoleAssignment
		profileErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.profiles.GetByID(gctx, subjectID)
		switch {
		case errors.Is(err, data.ErrProfileNotFound), err == nil && p == nil:
			profileErr = apperrors.ProfileNotFound(subjectID)
		case err != nil:
			profileErr = apperrors.Resolution(err, "failed to load user profile")
		default:
			profile = p
		}
		return profileErr
	})
	g.Go(func() error {
		a, err := r.roles.ListActiveAssignments(gctx, subjectID)
		if err != nil {
			return apperrors.Resolution(err, "failed to load user roles")
		}
		assignments = a
		return nil
	})
	// A missing profile outranks whatever the role read reported after cancellation.
	if err := g.Wait(); err != nil {
		if apperrors.IsProfileNotFound(profileErr) {
			return domainauth.Snapshot{}, profileErr
		}
		return domainauth.Snapshot{}, err
	}

	roles, roleIDs := r.collectRoles(ctx, subjectID, assignments)

	var grants []domainauth.PermissionGrant
	if len(roleIDs) > 0 {
		var err error
		grants, err = r.permissions.ListCodesByRoleIDs(ctx, roleIDs)
		if err != nil {
			return domainauth.Snapshot{}, apperrors.Resolution(err, "failed to load permissions")
		}
	}

	snap, err := domainauth.NewSnapshot(domainauth.SnapshotInput{
		SubjectID: subjectID,
		Profile:   profile,
		Roles:     roles,
		Grants:    grants,
	})
	if err != nil {
		return domainauth.Snapshot{}, apperrors.Wrap(err, apperrors.ErrCodeResolution, "invalid authorization data")
	}

	r.logger.DebugContext(ctx, "snapshot resolved",
		"subject_id", subjectID,
		"roles", len(snap.Roles()),
		"permissions", len(snap.Permissions()),
	)
	return snap, nil
}

// collectRoles drops assignments whose role definition is gone and returns the distinct
// ids of active roles, the only ones whose grants count.
func (r *Resolver) collectRoles(
	ctx context.Context,
	subjectID string,
	assignments []domainauth.RoleAssignment,
) ([]domainauth.Role, []string) {
	roles := make([]domainauth.Role, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	var ids []string
	for _, a := range assignments {
		if a.Role == nil {
			r.logger.DebugContext(ctx, "dropping assignment with missing role definition",
				"subject_id", subjectID, "assignment_id", a.ID, "role_id", a.RoleID)
			continue
		}
		roles = append(roles, *a.Role)
		if !a.Role.Active {
			continue
		}
		if _, dup := seen[a.Role.ID]; dup {
			continue
		}
		seen[a.Role.ID] = struct{}{}
		ids = append(ids, a.Role.ID)
	}
	return roles, ids
}

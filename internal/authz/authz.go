// Package authz implements the Authorization Resolver (C6): assembling the
// effective role/permission set for a principal from direct role
// assignments and role assignments inherited via group membership.
package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role, Permission, Group are the RBAC graph's named entities.
type Role struct {
	ID   uuid.UUID
	Name string
}

type Permission struct {
	ID   uuid.UUID
	Name string // "resource:action"
}

type Group struct {
	ID   uuid.UUID
	Name string
}

// GroupMembership links a user to a group, optionally time-windowed.
type GroupMembership struct {
	UserID    uuid.UUID
	GroupID   uuid.UUID
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// RoleAssignment grants a role directly to a user, optionally time-windowed.
type RoleAssignment struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// GroupRoleAssignment grants a role to every member of a group.
type GroupRoleAssignment struct {
	GroupID uuid.UUID
	RoleID  uuid.UUID
}

func (m GroupMembership) activeAt(now time.Time) bool {
	if m.ValidFrom != nil && now.Before(*m.ValidFrom) {
		return false
	}
	if m.ValidTo != nil && !now.Before(*m.ValidTo) {
		return false
	}
	return true
}

func (a RoleAssignment) activeAt(now time.Time) bool {
	if a.ValidFrom != nil && now.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && !now.Before(*a.ValidTo) {
		return false
	}
	return true
}

// Context is the assembled effective authorization context for a user.
type Context struct {
	UserID      uuid.UUID
	Email       string
	DisplayName *string
	Roles       []string
	Permissions []string
}

// Stores — the persistence ports the resolver composes. Every lookup that
// can fail degrades to an empty slice rather than propagating the error,
// per §7: a transient store glitch must never escalate privileges or
// produce a null-array access token claim.
type RoleStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Role, error)
}

type PermissionCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
}

type GroupStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Group, error)
}

type GroupMembershipStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]GroupMembership, error)
}

type RoleAssignmentStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error)
	AssignDirect(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error
}

type GroupRoleAssignmentStore interface {
	FindByGroupID(ctx context.Context, groupID uuid.UUID) ([]GroupRoleAssignment, error)
}

// RolePermissionStore resolves which permissions a role owns. Kept as its
// own narrow seam rather than folded into RoleStore so the RBAC graph's
// edges (role-owns-permission) are swappable independent of role identity.
type RolePermissionStore interface {
	FindPermissionIDsByRoleID(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
}

// Resolver is the contract the rest of the core depends on.
type Resolver interface {
	EffectiveContext(ctx context.Context, userID uuid.UUID, email string, displayName *string) (*Context, error)
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
	EffectiveContextsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*Context, error)
	EffectivePermissionsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error)
}

// DBResolver implements Resolver over the store ports above.
type DBResolver struct {
	roles            RoleStore
	permissions      PermissionCatalog
	rolePermissions  RolePermissionStore
	groupMemberships GroupMembershipStore
	groupRoles       GroupRoleAssignmentStore
	roleAssignments  RoleAssignmentStore
}

// NewDBResolver wires a DBResolver from its collaborator ports.
func NewDBResolver(
	roles RoleStore,
	permissions PermissionCatalog,
	rolePermissions RolePermissionStore,
	groupMemberships GroupMembershipStore,
	groupRoles GroupRoleAssignmentStore,
	roleAssignments RoleAssignmentStore,
) *DBResolver {
	return &DBResolver{
		roles:            roles,
		permissions:      permissions,
		rolePermissions:  rolePermissions,
		groupMemberships: groupMemberships,
		groupRoles:       groupRoles,
		roleAssignments:  roleAssignments,
	}
}

// effectiveRoleIDs returns the deduplicated set of role ids a user holds
// directly or inherits through currently-active group memberships. Any
// store error degrades that dimension to empty rather than propagating.
func (r *DBResolver) effectiveRoleIDs(ctx context.Context, userID uuid.UUID) []uuid.UUID {
	now := time.Now()
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID

	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if assignments, err := r.roleAssignments.FindByUserID(ctx, userID); err == nil {
		for _, a := range assignments {
			if a.activeAt(now) {
				add(a.RoleID)
			}
		}
	}

	if memberships, err := r.groupMemberships.FindByUserID(ctx, userID); err == nil {
		for _, m := range memberships {
			if !m.activeAt(now) {
				continue
			}
			groupRoles, err := r.groupRoles.FindByGroupID(ctx, m.GroupID)
			if err != nil {
				continue
			}
			for _, gr := range groupRoles {
				add(gr.RoleID)
			}
		}
	}

	return ids
}

// EffectiveContext assembles {roles, permissions} for a user. Both lists
// are guaranteed non-nil.
func (r *DBResolver) EffectiveContext(ctx context.Context, userID uuid.UUID, email string, displayName *string) (*Context, error) {
	roleIDs := r.effectiveRoleIDs(ctx, userID)

	roleNames := make([]string, 0, len(roleIDs))
	permSeen := make(map[string]struct{})
	var permNames []string

	for _, roleID := range roleIDs {
		if role, err := r.roles.FindByID(ctx, roleID); err == nil && role != nil {
			roleNames = append(roleNames, role.Name)
		}
		permIDs, err := r.rolePermissions.FindPermissionIDsByRoleID(ctx, roleID)
		if err != nil {
			continue
		}
		for _, permID := range permIDs {
			perm, err := r.permissions.FindByID(ctx, permID)
			if err != nil || perm == nil {
				continue
			}
			if _, ok := permSeen[perm.Name]; !ok {
				permSeen[perm.Name] = struct{}{}
				permNames = append(permNames, perm.Name)
			}
		}
	}

	if permNames == nil {
		permNames = []string{}
	}
	if roleNames == nil {
		roleNames = []string{}
	}

	return &Context{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Roles:       roleNames,
		Permissions: permNames,
	}, nil
}

// EffectivePermissions is a convenience shortcut over EffectiveContext used
// by callers (e.g. the refresh-token rotation path) that need only the
// permissions claim, not the full context.
func (r *DBResolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	actx, err := r.EffectiveContext(ctx, userID, "", nil)
	if err != nil {
		return []string{}, nil
	}
	return actx.Permissions, nil
}

// EffectiveContextsFor is the batch form: missing keys in the returned map
// imply no grants, never an error for that individual user.
func (r *DBResolver) EffectiveContextsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*Context, error) {
	out := make(map[uuid.UUID]*Context, len(userIDs))
	for _, id := range userIDs {
		actx, err := r.EffectiveContext(ctx, id, "", nil)
		if err != nil {
			continue
		}
		out[id] = actx
	}
	return out, nil
}

// EffectivePermissionsFor is the batch form of EffectivePermissions.
func (r *DBResolver) EffectivePermissionsFor(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(userIDs))
	for _, id := range userIDs {
		perms, err := r.EffectivePermissions(ctx, id)
		if err != nil {
			continue
		}
		out[id] = perms
	}
	return out, nil
}

package authz

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/laventecare/identitycore/internal/identityerr"
)

// MemoryCatalog is a mutex-guarded in-memory implementation of every authz
// store port, used by tests and as a reference implementation.
type MemoryCatalog struct {
	mu sync.Mutex

	roles            map[uuid.UUID]Role
	permissions      map[uuid.UUID]Permission
	rolePermissions  map[uuid.UUID][]uuid.UUID
	groupMemberships map[uuid.UUID][]GroupMembership
	groupRoles       map[uuid.UUID][]GroupRoleAssignment
	roleAssignments  map[uuid.UUID][]RoleAssignment
}

// NewMemoryCatalog builds an empty MemoryCatalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		roles:            make(map[uuid.UUID]Role),
		permissions:      make(map[uuid.UUID]Permission),
		rolePermissions:  make(map[uuid.UUID][]uuid.UUID),
		groupMemberships: make(map[uuid.UUID][]GroupMembership),
		groupRoles:       make(map[uuid.UUID][]GroupRoleAssignment),
		roleAssignments:  make(map[uuid.UUID][]RoleAssignment),
	}
}

// AddRole registers a role and its owned permissions for tests/fixtures.
func (c *MemoryCatalog) AddRole(role Role, permissionIDs ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[role.ID] = role
	c.rolePermissions[role.ID] = permissionIDs
}

// AddPermission registers a permission for tests/fixtures.
func (c *MemoryCatalog) AddPermission(p Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissions[p.ID] = p
}

// AssignRoleDirect grants roleID to userID directly.
func (c *MemoryCatalog) AssignRoleDirect(userID, roleID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roleAssignments[userID] = append(c.roleAssignments[userID], RoleAssignment{UserID: userID, RoleID: roleID})
}

// AddGroupMembership places userID in groupID.
func (c *MemoryCatalog) AddGroupMembership(userID, groupID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupMemberships[userID] = append(c.groupMemberships[userID], GroupMembership{UserID: userID, GroupID: groupID})
}

// AssignRoleToGroup grants roleID to every member of groupID.
func (c *MemoryCatalog) AssignRoleToGroup(groupID, roleID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupRoles[groupID] = append(c.groupRoles[groupID], GroupRoleAssignment{GroupID: groupID, RoleID: roleID})
}

func (c *MemoryCatalog) FindByID(_ context.Context, id uuid.UUID) (*Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.roles[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *MemoryCatalog) FindPermissionByID(_ context.Context, id uuid.UUID) (*Permission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.permissions[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (c *MemoryCatalog) FindByName(_ context.Context, name string) (*Permission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.permissions {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (c *MemoryCatalog) FindPermissionIDsByRoleID(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.rolePermissions[roleID]...), nil
}

func (c *MemoryCatalog) FindByUserID(_ context.Context, userID uuid.UUID) ([]GroupMembership, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]GroupMembership(nil), c.groupMemberships[userID]...), nil
}

func (c *MemoryCatalog) FindByGroupID(_ context.Context, groupID uuid.UUID) ([]GroupRoleAssignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]GroupRoleAssignment(nil), c.groupRoles[groupID]...), nil
}

func (c *MemoryCatalog) FindRoleAssignmentsByUserID(_ context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RoleAssignment(nil), c.roleAssignments[userID]...), nil
}

func (c *MemoryCatalog) AssignDirect(_ context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, roleID := range roleIDs {
		if _, ok := c.roles[roleID]; !ok {
			return identityerr.NotFound("role does not exist: " + roleID.String())
		}
	}
	for _, roleID := range roleIDs {
		c.roleAssignments[userID] = append(c.roleAssignments[userID], RoleAssignment{UserID: userID, RoleID: roleID})
	}
	return nil
}

// catalogRoleAssignmentAdapter and catalogPermissionAdapter resolve the
// method-name collisions between PermissionCatalog.FindByID and
// RoleStore.FindByID, and between GroupMembershipStore/RoleAssignmentStore
// both wanting FindByUserID, without forcing MemoryCatalog itself to
// implement two conflicting interfaces at once.
type catalogPermissionAdapter struct{ *MemoryCatalog }

func (a catalogPermissionAdapter) FindByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	return a.MemoryCatalog.FindPermissionByID(ctx, id)
}

type catalogRoleAssignmentAdapter struct{ *MemoryCatalog }

func (a catalogRoleAssignmentAdapter) FindByUserID(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	return a.MemoryCatalog.FindRoleAssignmentsByUserID(ctx, userID)
}

func (a catalogRoleAssignmentAdapter) AssignDirect(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return a.MemoryCatalog.AssignDirect(ctx, userID, roleIDs)
}

// AsPermissionCatalog adapts c to the PermissionCatalog port.
func (c *MemoryCatalog) AsPermissionCatalog() PermissionCatalog { return catalogPermissionAdapter{c} }

// AsRoleAssignmentStore adapts c to the RoleAssignmentStore port.
func (c *MemoryCatalog) AsRoleAssignmentStore() RoleAssignmentStore {
	return catalogRoleAssignmentAdapter{c}
}

// NewMemoryDBResolver builds a DBResolver entirely over one MemoryCatalog,
// for tests and local development.
func NewMemoryDBResolver(c *MemoryCatalog) *DBResolver {
	return NewDBResolver(c, c.AsPermissionCatalog(), c, c, c, c.AsRoleAssignmentStore())
}

// memoryPrincipalPermissionLookup mirrors principalPermissionLookup in
// postgres.go, adapting MemoryCatalog to principal.PermissionLookup's
// (name -> id, found, err) shape for tests that wire the whole stack
// in-memory.
type memoryPrincipalPermissionLookup struct{ *MemoryCatalog }

func (a memoryPrincipalPermissionLookup) FindByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	p, err := a.MemoryCatalog.FindByName(ctx, name)
	if err != nil {
		return uuid.Nil, false, err
	}
	if p == nil {
		return uuid.Nil, false, nil
	}
	return p.ID, true, nil
}

// AsPrincipalPermissionLookup adapts c to principal.PermissionLookup.
func (c *MemoryCatalog) AsPrincipalPermissionLookup() interface {
	FindByName(ctx context.Context, name string) (uuid.UUID, bool, error)
} {
	return memoryPrincipalPermissionLookup{c}
}

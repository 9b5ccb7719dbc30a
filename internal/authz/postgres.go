package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/laventecare/identitycore/internal/identityerr"
)

// PostgresCatalog implements every store port DBResolver composes against
// the RBAC graph tables (roles, permissions, role_permissions, groups,
// group_memberships, group_role_assignments, role_assignments).
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog wraps an existing connection pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func noRowsToNil(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (c *PostgresCatalog) FindByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	var r Role
	err := c.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).Scan(&r.ID, &r.Name)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: find role: %w", err)
	}
	return &r, nil
}

func (c *PostgresCatalog) FindPermissionByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	var p Permission
	err := c.pool.QueryRow(ctx, `SELECT id, name FROM permissions WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: find permission by id: %w", err)
	}
	return &p, nil
}

func (c *PostgresCatalog) FindByName(ctx context.Context, name string) (*Permission, error) {
	var p Permission
	err := c.pool.QueryRow(ctx, `SELECT id, name FROM permissions WHERE name = $1`, name).Scan(&p.ID, &p.Name)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: find permission by name: %w", err)
	}
	return &p, nil
}

func (c *PostgresCatalog) FindGroupByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	var g Group
	err := c.pool.QueryRow(ctx, `SELECT id, name FROM groups WHERE id = $1`, id).Scan(&g.ID, &g.Name)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: find group: %w", err)
	}
	return &g, nil
}

func (c *PostgresCatalog) FindMembershipsByUserID(ctx context.Context, userID uuid.UUID) ([]GroupMembership, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT user_id, group_id, valid_from, valid_to
		FROM group_memberships WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: find memberships: %w", err)
	}
	defer rows.Close()

	var out []GroupMembership
	for rows.Next() {
		var m GroupMembership
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.ValidFrom, &m.ValidTo); err != nil {
			return nil, fmt.Errorf("authz: scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) FindRoleAssignmentsByUserID(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT user_id, role_id, valid_from, valid_to
		FROM role_assignments WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: find role assignments: %w", err)
	}
	defer rows.Close()

	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.ValidFrom, &a.ValidTo); err != nil {
			return nil, fmt.Errorf("authz: scan role assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) AssignDirect(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	for _, roleID := range roleIDs {
		role, err := c.FindByID(ctx, roleID)
		if err != nil {
			return err
		}
		if role == nil {
			return identityerr.NotFound("role does not exist: " + roleID.String())
		}
	}
	for _, roleID := range roleIDs {
		_, err := c.pool.Exec(ctx, `
			INSERT INTO role_assignments (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT (user_id, role_id) DO NOTHING
		`, userID, roleID)
		if err != nil {
			return fmt.Errorf("authz: assign role: %w", err)
		}
	}
	return nil
}

func (c *PostgresCatalog) AssignPermissionsDirect(ctx context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error {
	for _, permID := range permissionIDs {
		perm, err := c.FindPermissionByID(ctx, permID)
		if err != nil {
			return err
		}
		if perm == nil {
			return identityerr.NotFound("permission does not exist: " + permID.String())
		}
	}
	for _, permID := range permissionIDs {
		_, err := c.pool.Exec(ctx, `
			INSERT INTO principal_permissions (principal_id, permission_id) VALUES ($1, $2)
			ON CONFLICT (principal_id, permission_id) DO NOTHING
		`, principalID, permID)
		if err != nil {
			return fmt.Errorf("authz: assign permission: %w", err)
		}
	}
	return nil
}

func (c *PostgresCatalog) FindGroupRoleAssignmentsByGroupID(ctx context.Context, groupID uuid.UUID) ([]GroupRoleAssignment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT group_id, role_id FROM group_role_assignments WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("authz: find group role assignments: %w", err)
	}
	defer rows.Close()

	var out []GroupRoleAssignment
	for rows.Next() {
		var gr GroupRoleAssignment
		if err := rows.Scan(&gr.GroupID, &gr.RoleID); err != nil {
			return nil, fmt.Errorf("authz: scan group role assignment: %w", err)
		}
		out = append(out, gr)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) FindPermissionIDsByRoleID(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT permission_id FROM role_permissions WHERE role_id = $1
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("authz: find role permissions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("authz: scan role permission: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// adapter wrapper types resolve the same FindByID-name collision memory.go
// hits between RoleStore and PermissionCatalog, and between
// GroupMembershipStore and RoleAssignmentStore.

type postgresPermissionCatalog struct{ *PostgresCatalog }

func (a postgresPermissionCatalog) FindByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	return a.PostgresCatalog.FindPermissionByID(ctx, id)
}

func (a postgresPermissionCatalog) FindByName(ctx context.Context, name string) (*Permission, error) {
	return a.PostgresCatalog.FindByName(ctx, name)
}

// AsPermissionCatalog adapts the catalog to the PermissionCatalog port.
func (c *PostgresCatalog) AsPermissionCatalog() PermissionCatalog { return postgresPermissionCatalog{c} }

// principalPermissionLookup adapts the catalog to the shape
// principal.PermissionLookup expects (name -> id, found, err) rather than
// the (name -> *Permission, err) shape PermissionCatalog uses — the two
// packages are deliberately kept without a direct import between them, so
// this satisfies principal.PermissionLookup structurally rather than by
// reference.
type principalPermissionLookup struct{ *PostgresCatalog }

func (a principalPermissionLookup) FindByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	p, err := a.PostgresCatalog.FindByName(ctx, name)
	if err != nil {
		return uuid.Nil, false, err
	}
	if p == nil {
		return uuid.Nil, false, nil
	}
	return p.ID, true, nil
}

// AsPrincipalPermissionLookup adapts the catalog to principal.PermissionLookup.
func (c *PostgresCatalog) AsPrincipalPermissionLookup() interface {
	FindByName(ctx context.Context, name string) (uuid.UUID, bool, error)
} {
	return principalPermissionLookup{c}
}

type postgresGroupStore struct{ *PostgresCatalog }

func (a postgresGroupStore) FindByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	return a.PostgresCatalog.FindGroupByID(ctx, id)
}

// AsGroupStore adapts the catalog to the GroupStore port.
func (c *PostgresCatalog) AsGroupStore() GroupStore { return postgresGroupStore{c} }

type postgresGroupMembershipStore struct{ *PostgresCatalog }

func (a postgresGroupMembershipStore) FindByUserID(ctx context.Context, userID uuid.UUID) ([]GroupMembership, error) {
	return a.PostgresCatalog.FindMembershipsByUserID(ctx, userID)
}

// AsGroupMembershipStore adapts the catalog to the GroupMembershipStore port.
func (c *PostgresCatalog) AsGroupMembershipStore() GroupMembershipStore {
	return postgresGroupMembershipStore{c}
}

type postgresRoleAssignmentStore struct{ *PostgresCatalog }

func (a postgresRoleAssignmentStore) FindByUserID(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	return a.PostgresCatalog.FindRoleAssignmentsByUserID(ctx, userID)
}

func (a postgresRoleAssignmentStore) AssignDirect(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return a.PostgresCatalog.AssignDirect(ctx, userID, roleIDs)
}

// AsRoleAssignmentStore adapts the catalog to the RoleAssignmentStore port.
func (c *PostgresCatalog) AsRoleAssignmentStore() RoleAssignmentStore {
	return postgresRoleAssignmentStore{c}
}

type postgresGroupRoleAssignmentStore struct{ *PostgresCatalog }

func (a postgresGroupRoleAssignmentStore) FindByGroupID(ctx context.Context, groupID uuid.UUID) ([]GroupRoleAssignment, error) {
	return a.PostgresCatalog.FindGroupRoleAssignmentsByGroupID(ctx, groupID)
}

// AsGroupRoleAssignmentStore adapts the catalog to the GroupRoleAssignmentStore port.
func (c *PostgresCatalog) AsGroupRoleAssignmentStore() GroupRoleAssignmentStore {
	return postgresGroupRoleAssignmentStore{c}
}

type postgresRolePermissionStore struct{ *PostgresCatalog }

func (a postgresRolePermissionStore) FindPermissionIDsByRoleID(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	return a.PostgresCatalog.FindPermissionIDsByRoleID(ctx, roleID)
}

// AsRolePermissionStore adapts the catalog to the RolePermissionStore port.
func (c *PostgresCatalog) AsRolePermissionStore() RolePermissionStore {
	return postgresRolePermissionStore{c}
}

// NewPostgresDBResolver wires a DBResolver entirely from one Postgres pool.
func NewPostgresDBResolver(pool *pgxpool.Pool) *DBResolver {
	c := NewPostgresCatalog(pool)
	return NewDBResolver(
		c,
		c.AsPermissionCatalog(),
		c.AsRolePermissionStore(),
		c.AsGroupMembershipStore(),
		c.AsGroupRoleAssignmentStore(),
		c.AsRoleAssignmentStore(),
	)
}

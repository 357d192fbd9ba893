package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Store persists roles and their feature permission matrix in PostgreSQL.
type Store struct {
	pool db.Pool
}

// NewStore constructs a Store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const permissionColumns = `role_id, feature, can_view, can_create, can_update, can_delete`

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRole)
}

// GetRole fetches a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id)
	if err != nil {
		return Role{}, err
	}
	role, err := pgx.CollectExactlyOneRow(rows, scanRole)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

// GetRoleByName fetches a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE name = $1`, name)
	if err != nil {
		return Role{}, err
	}
	role, err := pgx.CollectExactlyOneRow(rows, scanRole)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

// EnsureRole inserts the role if missing and returns it.
func (s *Store) EnsureRole(ctx context.Context, name, description string) (Role, error) {
	rows, err := s.pool.Query(ctx, `
INSERT INTO roles (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
RETURNING id, name, description, created_at, updated_at`, name, description)
	if err != nil {
		return Role{}, err
	}
	return pgx.CollectExactlyOneRow(rows, scanRole)
}

// PermissionsFor returns the rows of roleIDs for feature.
func (s *Store) PermissionsFor(ctx context.Context, roleIDs []int64, feature Feature) ([]FeaturePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+permissionColumns+` FROM role_feature_permissions WHERE role_id = ANY($1) AND feature = $2 ORDER BY role_id`, roleIDs, string(feature))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPermission)
}

// PermissionsForRoles returns every row held by roleIDs.
func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]FeaturePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+permissionColumns+` FROM role_feature_permissions WHERE role_id = ANY($1) ORDER BY role_id, feature`, roleIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPermission)
}

// RolePermissions returns the matrix of a single role.
func (s *Store) RolePermissions(ctx context.Context, roleID int64) ([]FeaturePermission, error) {
	return s.PermissionsForRoles(ctx, []int64{roleID})
}

// ReplaceRolePermissions deletes every row of roleID and inserts perms in one
// READ COMMITTED transaction. The role row is locked first so concurrent
// replacements of the same role are applied one after the other.
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []FeaturePermission) error {
	return db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoleNotFound
		}
		if err != nil {
			return fmt.Errorf("rbac: lock role: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_feature_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: delete permissions: %w", err)
		}
		if len(perms) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"role_feature_permissions"},
			[]string{"role_id", "feature", "can_view", "can_create", "can_update", "can_delete"},
			pgx.CopyFromSlice(len(perms), func(i int) ([]any, error) {
				p := perms[i]
				return []any{roleID, string(p.Feature), p.CanView, p.CanCreate, p.CanUpdate, p.CanDelete}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("rbac: insert permissions: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: touch role: %w", err)
		}
		return nil
	})
}

func scanRole(row pgx.CollectableRow) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanPermission(row pgx.CollectableRow) (FeaturePermission, error) {
	var (
		p       FeaturePermission
		feature string
	)
	err := row.Scan(&p.RoleID, &feature, &p.CanView, &p.CanCreate, &p.CanUpdate, &p.CanDelete)
	p.Feature = Feature(feature)
	return p, err
}

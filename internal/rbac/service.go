package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository is the persistence port of the role administration service.
type Repository interface {
	PermissionReader
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	EnsureRole(ctx context.Context, name, description string) (Role, error)
	RolePermissions(ctx context.Context, roleID int64) ([]FeaturePermission, error)
	PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]FeaturePermission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, perms []FeaturePermission) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates RBAC operations.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// RoleByName fetches a role by name.
func (s *Service) RoleByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
}

// RolePermissions returns the feature matrix of an existing role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]FeaturePermission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePermissions(ctx, roleID)
}

// ReplaceRolePermissions overwrites every permission row of roleID with perms.
// Either the whole new set becomes visible or the old one stays intact.
func (s *Service) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []FeaturePermission) ([]FeaturePermission, error) {
	normalized, err := normalizePermissions(roleID, perms)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, normalized); err != nil {
		return nil, err
	}
	s.record(ctx, roleID, normalized)
	return normalized, nil
}

// EffectiveCapabilities folds every role's rows into one matrix per feature
// using the same OR-union the evaluator applies. Admins get everything.
func (s *Service) EffectiveCapabilities(ctx context.Context, p Principal) (map[Feature]Capabilities, error) {
	out := make(map[Feature]Capabilities, len(allFeatures))
	if p.Admin {
		for _, f := range allFeatures {
			out[f] = Capabilities{View: true, Create: true, Update: true, Delete: true}
		}
		return out, nil
	}
	rows, err := s.repo.PermissionsForRoles(ctx, p.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective capabilities: %w", err)
	}
	for _, row := range rows {
		out[row.Feature] = out[row.Feature].union(row)
	}
	return out, nil
}

// ApplyMatrix creates missing roles and replaces each role's permissions.
// Each role is replaced atomically; roles are processed in file order.
func (s *Service) ApplyMatrix(ctx context.Context, m Matrix) ([]Role, error) {
	applied := make([]Role, 0, len(m.Roles))
	for _, entry := range m.Roles {
		perms, err := entry.featurePermissions()
		if err != nil {
			return applied, fmt.Errorf("rbac: role %q: %w", entry.Name, err)
		}
		role, err := s.repo.EnsureRole(ctx, strings.TrimSpace(entry.Name), entry.Description)
		if err != nil {
			return applied, fmt.Errorf("rbac: ensure role %q: %w", entry.Name, err)
		}
		if _, err := s.ReplaceRolePermissions(ctx, role.ID, perms); err != nil {
			return applied, fmt.Errorf("rbac: replace %q: %w", entry.Name, err)
		}
		applied = append(applied, role)
	}
	return applied, nil
}

func (s *Service) record(ctx context.Context, roleID int64, perms []FeaturePermission) {
	if s.audit == nil {
		return
	}
	features := make([]string, 0, len(perms))
	for _, p := range perms {
		features = append(features, string(p.Feature))
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "role.permissions_replaced",
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     map[string]any{"features": features},
	})
	if err != nil {
		s.logger.Warn("audit role permissions", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func normalizePermissions(roleID int64, perms []FeaturePermission) ([]FeaturePermission, error) {
	seen := make(map[Feature]struct{}, len(perms))
	out := make([]FeaturePermission, 0, len(perms))
	for _, p := range perms {
		if !p.Feature.Valid() {
			return nil, fmt.Errorf("%w %q", ErrUnknownFeature, p.Feature)
		}
		if _, dup := seen[p.Feature]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateFeature, p.Feature)
		}
		seen[p.Feature] = struct{}{}
		p.RoleID = roleID
		out = append(out, p)
	}
	return out, nil
}

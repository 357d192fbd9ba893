package rbac

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu         sync.Mutex
	roles      map[int64]Role
	perms      map[int64][]FeaturePermission
	nextID     int64
	replaceErr error
	lookups    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{roles: make(map[int64]Role), perms: make(map[int64][]FeaturePermission)}
}

func (m *memoryStore) addRole(name string, perms ...FeaturePermission) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	role := Role{ID: m.nextID, Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.roles[role.ID] = role
	for i := range perms {
		perms[i].RoleID = role.ID
	}
	m.perms[role.ID] = perms
	return role
}

func (m *memoryStore) PermissionsFor(_ context.Context, roleIDs []int64, feature Feature) ([]FeaturePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	var out []FeaturePermission
	for _, id := range roleIDs {
		for _, p := range m.perms[id] {
			if p.Feature == feature {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memoryStore) ListRoles(context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) GetRole(_ context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

func (m *memoryStore) GetRoleByName(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (m *memoryStore) EnsureRole(ctx context.Context, name, _ string) (Role, error) {
	if r, err := m.GetRoleByName(ctx, name); err == nil {
		return r, nil
	}
	return m.addRole(name), nil
}

func (m *memoryStore) RolePermissions(ctx context.Context, roleID int64) ([]FeaturePermission, error) {
	return m.PermissionsForRoles(ctx, []int64{roleID})
}

func (m *memoryStore) PermissionsForRoles(_ context.Context, roleIDs []int64) ([]FeaturePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FeaturePermission
	for _, id := range roleIDs {
		out = append(out, m.perms[id]...)
	}
	return out, nil
}

// ReplaceRolePermissions swaps the slice under the lock, so readers observe
// either the old or the new set.
func (m *memoryStore) ReplaceRolePermissions(_ context.Context, roleID int64, perms []FeaturePermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if _, ok := m.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	m.perms[roleID] = append([]FeaturePermission(nil), perms...)
	return nil
}

type failingReader struct{}

func (failingReader) PermissionsFor(context.Context, []int64, Feature) ([]FeaturePermission, error) {
	return nil, errors.New("connection refused")
}

type recorderStub struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorderStub) ObserveAuthz(feature, action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, feature+"/"+action+"/"+outcome)
}

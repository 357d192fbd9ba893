package rbac

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Matrix is the file form of role permissions used by the admin CLI:
//
//	roles:
//	  - name: client
//	    permissions:
//	      - {feature: orders, view: true, create: true}
type Matrix struct {
	Roles []MatrixRole `yaml:"roles"`
}

// MatrixRole lists the permissions of one role.
type MatrixRole struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Permissions []MatrixPermission `yaml:"permissions"`
}

// MatrixPermission is one feature row.
type MatrixPermission struct {
	Feature string `yaml:"feature"`
	View    bool   `yaml:"view,omitempty"`
	Create  bool   `yaml:"create,omitempty"`
	Update  bool   `yaml:"update,omitempty"`
	Delete  bool   `yaml:"delete,omitempty"`
}

// ParseMatrix decodes and validates a YAML permission matrix.
func ParseMatrix(r io.Reader) (Matrix, error) {
	var m Matrix
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Matrix{}, fmt.Errorf("%w: empty matrix", shared.ErrValidation)
		}
		return Matrix{}, fmt.Errorf("rbac: decode matrix: %w", err)
	}
	names := make(map[string]struct{}, len(m.Roles))
	for _, role := range m.Roles {
		name := strings.TrimSpace(role.Name)
		if name == "" {
			return Matrix{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
		}
		if _, dup := names[name]; dup {
			return Matrix{}, fmt.Errorf("%w: role %q listed twice", shared.ErrValidation, name)
		}
		names[name] = struct{}{}
		if _, err := role.featurePermissions(); err != nil {
			return Matrix{}, fmt.Errorf("role %q: %w", name, err)
		}
	}
	return m, nil
}

// MatrixFor renders a role and its rows back into file form.
func MatrixFor(role Role, perms []FeaturePermission) Matrix {
	entry := MatrixRole{Name: role.Name, Description: role.Description}
	for _, p := range perms {
		entry.Permissions = append(entry.Permissions, MatrixPermission{
			Feature: string(p.Feature),
			View:    p.CanView,
			Create:  p.CanCreate,
			Update:  p.CanUpdate,
			Delete:  p.CanDelete,
		})
	}
	return Matrix{Roles: []MatrixRole{entry}}
}

// Encode writes the matrix as YAML.
func (m Matrix) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

func (r MatrixRole) featurePermissions() ([]FeaturePermission, error) {
	seen := make(map[Feature]struct{}, len(r.Permissions))
	out := make([]FeaturePermission, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		f, err := ParseFeature(p.Feature)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("%w %q", ErrDuplicateFeature, f)
		}
		seen[f] = struct{}{}
		out = append(out, FeaturePermission{
			Feature:   f,
			CanView:   p.View,
			CanCreate: p.Create,
			CanUpdate: p.Update,
			CanDelete: p.Delete,
		})
	}
	return out, nil
}

package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var (
	// ErrRoleNotFound indicates that the role does not exist.
	ErrRoleNotFound = fmt.Errorf("rbac: role %w", shared.ErrNotFound)
	// ErrDenied is matched by every *DeniedError.
	ErrDenied = errors.New("rbac: access denied")
	// ErrUnknownFeature is returned when a feature name is not part of the enumeration.
	ErrUnknownFeature = fmt.Errorf("%w: unknown feature", shared.ErrValidation)
	// ErrUnknownAction is returned when an action name is not one of view/create/update/delete.
	ErrUnknownAction = fmt.Errorf("%w: unknown action", shared.ErrValidation)
	// ErrDuplicateFeature is returned when a replacement lists the same feature twice.
	ErrDuplicateFeature = fmt.Errorf("%w: duplicate feature", shared.ErrValidation)
)

// Feature is a protected resource category.
type Feature string

const (
	FeatureClients  Feature = "clients"
	FeatureOrders   Feature = "orders"
	FeatureProducts Feature = "products"
	FeatureComments Feature = "comments"
	FeatureUsers    Feature = "users"
	FeatureRoles    Feature = "roles"
)

var allFeatures = []Feature{
	FeatureClients,
	FeatureOrders,
	FeatureProducts,
	FeatureComments,
	FeatureUsers,
	FeatureRoles,
}

// Features returns the enumeration in display order.
func Features() []Feature {
	return slices.Clone(allFeatures)
}

// Valid reports whether f is a member of the enumeration.
func (f Feature) Valid() bool {
	return slices.Contains(allFeatures, f)
}

// ParseFeature normalises and validates a feature name.
func ParseFeature(raw string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownFeature, raw)
	}
	return f, nil
}

// Action is authorised independently per feature.
type Action uint8

const (
	ActionView Action = iota + 1
	ActionCreate
	ActionUpdate
	ActionDelete
)

var allActions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

// Actions returns every action.
func Actions() []Action {
	return slices.Clone(allActions)
}

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseAction converts view/create/update/delete into an Action.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "view":
		return ActionView, nil
	case "create":
		return ActionCreate, nil
	case "update":
		return ActionUpdate, nil
	case "delete":
		return ActionDelete, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownAction, raw)
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FeaturePermission is the capability row of one role for one feature.
// A missing row means no access to that feature for the role.
type FeaturePermission struct {
	RoleID    int64   `json:"role_id"`
	Feature   Feature `json:"feature"`
	CanView   bool    `json:"can_view"`
	CanCreate bool    `json:"can_create"`
	CanUpdate bool    `json:"can_update"`
	CanDelete bool    `json:"can_delete"`
}

// Allows reports whether the row grants action.
func (p FeaturePermission) Allows(action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionCreate:
		return p.CanCreate
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	}
	return false
}

// Capabilities is the view/create/update/delete tuple for one feature.
type Capabilities struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

func (c Capabilities) union(p FeaturePermission) Capabilities {
	return Capabilities{
		View:   c.View || p.CanView,
		Create: c.Create || p.CanCreate,
		Update: c.Update || p.CanUpdate,
		Delete: c.Delete || p.CanDelete,
	}
}

// AdminRoleName is the role whose holders bypass feature checks.
const AdminRoleName = "admin"

// Principal describes the authenticated actor. It is built once per request
// and never mutated afterwards.
type Principal struct {
	UserID    int64    `json:"user_id"`
	RoleIDs   []int64  `json:"role_ids"`
	RoleNames []string `json:"roles"`
	Admin     bool     `json:"is_admin"`
}

// NewPrincipal derives a principal from the user's roles. Admin is true iff
// one of the roles is named "admin" (case-insensitively).
func NewPrincipal(userID int64, roles []Role) Principal {
	p := Principal{UserID: userID}
	fold := cases.Fold()
	adminKey := fold.String(AdminRoleName)
	for _, r := range roles {
		p.RoleIDs = append(p.RoleIDs, r.ID)
		p.RoleNames = append(p.RoleNames, r.Name)
		if fold.String(strings.TrimSpace(r.Name)) == adminKey {
			p.Admin = true
		}
	}
	return p
}

// DenyReason distinguishes the three ways a request can be refused.
type DenyReason uint8

const (
	ReasonNone DenyReason = iota
	ReasonNoRoles
	ReasonNoFeaturePermissions
	ReasonInsufficientAction
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNoRoles:
		return "no roles assigned"
	case ReasonNoFeaturePermissions:
		return "no permissions for feature"
	case ReasonInsufficientAction:
		return "insufficient permission for action"
	default:
		return ""
	}
}

// Decision is the outcome of Authorize. Reason is ReasonNone when Allowed.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the permitting decision.
var Allow = Decision{Allowed: true}

// Deny builds a refusing decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Err converts a deny decision into a *DeniedError; it returns nil when allowed.
func (d Decision) Err(feature Feature, action Action) error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Feature: feature, Action: action, Reason: d.Reason}
}

// DeniedError is surfaced to clients as 403 with the reason text.
type DeniedError struct {
	Feature Feature
	Action  Action
	Reason  DenyReason
}

func (e *DeniedError) Error() string {
	return e.Reason.String()
}

// Is matches ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// ProblemStatus maps the denial to HTTP 403.
func (e *DeniedError) ProblemStatus() int {
	return http.StatusForbidden
}

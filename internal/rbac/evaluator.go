package rbac

import (
	"context"
	"fmt"
)

// PermissionReader looks up the capability rows of a role set for one feature.
type PermissionReader interface {
	PermissionsFor(ctx context.Context, roleIDs []int64, feature Feature) ([]FeaturePermission, error)
}

// DecisionRecorder observes authorization outcomes (metrics).
type DecisionRecorder interface {
	ObserveAuthz(feature, action, outcome string)
}

// Evaluator decides allow/deny for (principal, feature, action). It only reads
// from the permission store.
type Evaluator struct {
	store    PermissionReader
	recorder DecisionRecorder
}

// NewEvaluator builds an Evaluator. recorder may be nil.
func NewEvaluator(store PermissionReader, recorder DecisionRecorder) *Evaluator {
	return &Evaluator{store: store, recorder: recorder}
}

// Authorize returns Allow when the principal is admin or when any of its roles
// grants action on feature. The error is non-nil only when the store fails.
func (e *Evaluator) Authorize(ctx context.Context, p Principal, feature Feature, action Action) (Decision, error) {
	d, err := e.decide(ctx, p, feature, action)
	if err != nil {
		e.observe(feature, action, "error")
		return Decision{}, err
	}
	if d.Allowed {
		e.observe(feature, action, "allow")
	} else {
		e.observe(feature, action, "deny")
	}
	return d, nil
}

func (e *Evaluator) decide(ctx context.Context, p Principal, feature Feature, action Action) (Decision, error) {
	if p.Admin {
		return Allow, nil
	}
	if len(p.RoleIDs) == 0 {
		return Deny(ReasonNoRoles), nil
	}
	rows, err := e.store.PermissionsFor(ctx, p.RoleIDs, feature)
	if err != nil {
		return Decision{}, fmt.Errorf("rbac: load permissions for %s: %w", feature, err)
	}
	if len(rows) == 0 {
		return Deny(ReasonNoFeaturePermissions), nil
	}
	for _, row := range rows {
		if row.Allows(action) {
			return Allow, nil
		}
	}
	return Deny(ReasonInsufficientAction), nil
}

func (e *Evaluator) observe(feature Feature, action Action, outcome string) {
	if e.recorder != nil {
		e.recorder.ObserveAuthz(string(feature), action.String(), outcome)
	}
}

package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated user id for audit attribution.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext returns the user id stored by ContextWithActor, or zero.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

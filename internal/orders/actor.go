package orders

import (
	"context"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

// Actor is the till user on whose behalf an operation runs.
type Actor struct {
	UserID string
	Role   enums.UserRole
}

// WithActor injects the current user into the context for downstream operations.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, actor.UserID)
	return context.WithValue(ctx, ctxRole, actor.Role)
}

// ActorFromContext returns the injected actor; an absent actor is an anonymous cashier.
func ActorFromContext(ctx context.Context) Actor {
	actor := Actor{Role: enums.UserRoleCashier}
	if ctx == nil {
		return actor
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		actor.UserID = v
	}
	if v, ok := ctx.Value(ctxRole).(enums.UserRole); ok && v.IsValid() {
		actor.Role = v
	}
	return actor
}

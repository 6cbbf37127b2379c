package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user (as reported by the gateway) in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user, "system" when unknown.
func ActorFromContext(ctx context.Context) string {
	if actor, _ := ctx.Value(actorContextKey{}).(string); actor != "" {
		return actor
	}
	return "system"
}

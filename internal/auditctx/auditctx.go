package auditctx

import (
	"context"

	"go.uber.org/zap"
)

// Actor identifies who issued a request, for attribution in service logs.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Fields renders the actor as log fields. Requests from the CLI or background jobs
// carry no actor and yield no fields.
func Fields(ctx context.Context) []zap.Field {
	actor, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	fields := []zap.Field{zap.String("actor_id", actor.UserID)}
	if actor.Username != "" {
		fields = append(fields, zap.String("actor", actor.Username))
	}
	if actor.IPAddress != "" {
		fields = append(fields, zap.String("actor_ip", actor.IPAddress))
	}
	if actor.UserAgent != "" {
		fields = append(fields, zap.String("actor_agent", actor.UserAgent))
	}
	return fields
}

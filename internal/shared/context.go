package shared

import (
	"context"
	"strings"
)

// Actor identifies the user submitting a document and the roles they hold.
type Actor struct {
	User  string
	Roles []string
}

// HasRole reports whether the actor holds role. Matching ignores case.
func (a Actor) HasRole(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.User == "" && len(a.Roles) == 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

package actor

import (
	"context"
	"errors"
)

// Actor is the authenticated identity performing an administrative action.
// It is resolved once per request from the auth collaborator and carried in
// the request context; there is no process-global identity cache.
type Actor struct {
	ID           string
	Role         string
	RequestIP    string
	RequestAgent string
}

var ErrNoActor = errors.New("no authenticated actor in context")

type ctxKey struct{}

// IntoContext returns a child context carrying the actor.
func IntoContext(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext extracts the actor placed by the auth middleware.
func FromContext(ctx context.Context) (Actor, error) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	if !ok || a.ID == "" {
		return Actor{}, ErrNoActor
	}

	return a, nil
}

// System is the synthetic actor recorded for mutations driven by gateway
// events rather than an administrator.
var System = Actor{ID: "system:gateway", Role: "system"}

package actorctx

import (
	"net/http"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/actor"
)

// Headers populated by the auth collaborator in front of this service.
const (
	HeaderActorID   = "X-Admin-Id"
	HeaderActorRole = "X-Admin-Role"
)

// NewActorMiddleware resolves the authenticated actor once per request and
// carries it in the request context, replacing any notion of a process-global
// identity cache.
func NewActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderActorID)
		if id == "" {
			next.ServeHTTP(w, r)

			return
		}

		a := actor.Actor{
			ID:           id,
			Role:         r.Header.Get(HeaderActorRole),
			RequestIP:    r.RemoteAddr,
			RequestAgent: r.UserAgent(),
		}

		next.ServeHTTP(w, r.WithContext(actor.IntoContext(r.Context(), a)))
	})
}

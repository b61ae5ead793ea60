package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/starford/tangle/internal/notestore"
	"github.com/starford/tangle/internal/sse"
)

// NewRouter creates the /api router.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, receives upserts and is mounted at GET /events inside
// the auth group.
func NewRouter(store notestore.Store, authEnabled bool, token string, allowedOrigins []string, broker *sse.Broker) chi.Router {
	var notifier Notifier
	if broker != nil {
		notifier = broker
	}
	h := NewHandler(store, notifier)

	r := chi.NewRouter()
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
			ExposedHeaders: []string{"ETag"},
			MaxAge:         300,
		}))
	}
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.UpsertNote)
	r.Get("/notes/{id}", h.GetNote)

	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}
	return r
}

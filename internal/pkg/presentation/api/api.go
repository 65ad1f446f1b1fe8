// Package api is the voice-assistant-facing HTTP front door (spec §4.G,
// §4.H, §6): bearer-authenticated smart-home device endpoints, the OAuth
// login/token/refresh exchange, and the Telegram provisioning webhook.
// Handler shape (span, trace-enriched logger, JSON marshal/write) follows
// the teacher's internal/pkg/presentation/api/api.go.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/smarthome"
	"github.com/homed/cloud-bridge/internal/pkg/user"
)

var tracer = otel.Tracer("cloud-bridge/api")

// TelegramSender delivers provisioning replies; see user.Sender. A nil
// sender drops replies without sending or logging them; user.LoggingSender
// is the stub that only logs them.
type TelegramSender = user.Sender

// RegisterHandlers wires every endpoint named in spec §6 onto router.
func RegisterHandlers(log zerolog.Logger, router *chi.Mux, users *user.Manager, ctl *bridge.Controller, sender TelegramSender) *chi.Mux {
	router.Post("/login", loginHandler(log, users))
	router.Get("/login", loginFormStubHandler())
	router.Post("/token", tokenHandler(log, users))
	router.Post("/refresh", refreshHandler(log, users))
	router.Post("/telegram", telegramHandler(log, users, sender))
	router.Get("/logo.png", logoHandler())

	router.Route("/api/v1.0", func(r chi.Router) {
		r.Head("/", healthHandler())

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(users))

			r.Post("/user/unlink", unlinkHandler(log, users))
			r.Get("/user/devices", listDevicesHandler(log, ctl))
			r.Post("/user/devices/query", queryDevicesHandler(log, ctl))
			r.Post("/user/devices/action", actionDevicesHandler(log, ctl))
		})
	})

	return router
}

type contextKey struct{ name string }

var userContextKey = &contextKey{"user"}

// bearerAuth validates the Authorization: Bearer <hex> header against
// users.FindByBearer, per spec §4.F/§4.G, rejecting with 401 otherwise.
func bearerAuth(users *user.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			u, ok := users.FindByBearer(auth[len(prefix):])
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = setUser(ctx, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func userFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userContextKey).(*user.User)
	return u
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func logoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// No bundled asset; the login HTML page and its static assets are
		// out of scope (spec.md §1 Non-goals).
		w.WriteHeader(http.StatusNotFound)
	}
}

func loginFormStubHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The rendered login page itself is out of scope (spec.md §1
		// Non-goals); GET /login only needs to exist as a reachable route.
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func readForm(r *http.Request) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func requestID() string {
	return uuid.New().String()
}

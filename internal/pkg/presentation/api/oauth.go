package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/user"
)

// loginHandler implements POST /login (spec §4.F, §6, original_source's
// `/login` branch): on valid username/password it mints an authorization
// code and 301-redirects to redirect_uri with state+code; on bad credentials
// or a failed code issuance it redirects back to /login with the original
// form echoed. A form that cannot be parsed is answered with 400.
func loginHandler(log zerolog.Logger, users *user.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "login")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		form, err := readForm(r)
		if err != nil {
			requestLogger.Warn().Err(err).Msg("unable to parse login form")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fail := func() {
			http.Redirect(w, r, "/login?"+r.PostForm.Encode(), http.StatusMovedPermanently)
		}

		u, ok := users.FindByName(form["username"])
		if !ok || !user.VerifyPassword(u.Hash, form["password"]) {
			requestLogger.Info().Str("username", form["username"]).Msg("login failed")
			fail()
			return
		}

		code, err := users.IssueAuthorizationCode(u)
		if err != nil {
			requestLogger.Error().Err(err).Msg("failed to issue authorization code")
			fail()
			return
		}

		requestLogger.Info().Str("username", u.Name).Msg("user logged in")

		redirect := form["redirect_uri"] + "?state=" + url.QueryEscape(form["state"]) + "&code=" + code
		http.Redirect(w, r, redirect, http.StatusMovedPermanently)
	}
}

// tokenHandler implements POST /token (authorization_code grant, spec §6).
func tokenHandler(log zerolog.Logger, users *user.Manager) http.HandlerFunc {
	return grantHandler(log, users, "authorization_code", func(users *user.Manager, form map[string]string) (user.TokenPair, error) {
		return users.ExchangeCode(form["client_id"], form["code"])
	})
}

// refreshHandler implements POST /refresh (refresh_token grant, spec §6).
func refreshHandler(log zerolog.Logger, users *user.Manager) http.HandlerFunc {
	return grantHandler(log, users, "refresh_token", func(users *user.Manager, form map[string]string) (user.TokenPair, error) {
		return users.ExchangeRefresh(form["client_id"], form["refresh_token"])
	})
}

func grantHandler(log zerolog.Logger, users *user.Manager, wantGrantType string, exchange func(*user.Manager, map[string]string) (user.TokenPair, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "grant-"+wantGrantType)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		form, err := readForm(r)
		if err != nil {
			requestLogger.Warn().Err(err).Msg("unable to parse grant form")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if form["grant_type"] != wantGrantType {
			err = errors.New("unsupported grant_type")
			w.WriteHeader(http.StatusForbidden)
			return
		}

		pair, err := exchange(users, form)
		if err != nil {
			if errors.Is(err, user.ErrBadClient) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_in":    pair.ExpiresIn,
			"token_type":    "bearer",
		})
	}
}

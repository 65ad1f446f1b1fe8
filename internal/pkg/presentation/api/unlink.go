package api

import (
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/user"
)

// unlinkHandler implements POST /api/v1.0/user/unlink (spec §4.G): zero the
// caller's tokens, persist, and return a request id.
func unlinkHandler(log zerolog.Logger, users *user.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "unlink-user")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		u := userFromContext(r.Context())
		if err = users.Unlink(u); err != nil {
			requestLogger.Error().Err(err).Int64("chat", u.Chat).Msg("failed to unlink user")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"request_id": requestID()})
	}
}

package api

import (
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/user"
)

type telegramWebhook struct {
	Message struct {
		Chat struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
		From struct {
			IsBot bool `json:"is_bot"`
		} `json:"from"`
		Text string `json:"text"`
	} `json:"message"`
}

// telegramHandler implements POST /telegram (spec §4.F supplement): decode
// the webhook body and drive the provisioning FSM. Always responds 200 so
// Telegram doesn't retry, per original_source's unconditional `sendResponse(200)`.
func telegramHandler(log zerolog.Logger, users *user.Manager, sender user.Sender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "telegram-webhook")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var update telegramWebhook
		if err = readJSON(r, &update); err != nil {
			requestLogger.Warn().Err(err).Msg("unable to decode telegram webhook body")
			w.WriteHeader(http.StatusOK)
			return
		}

		users.HandleTelegramUpdate(user.TelegramUpdate{
			ChatID:   update.Message.Chat.ID,
			ChatType: update.Message.Chat.Type,
			FromBot:  update.Message.From.IsBot,
			Text:     update.Message.Text,
		}, sender, requestLogger)

		w.WriteHeader(http.StatusOK)
	}
}

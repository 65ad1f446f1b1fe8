package api

import (
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"

	"github.com/homed/cloud-bridge/internal/pkg/bridge"
	"github.com/homed/cloud-bridge/internal/pkg/smarthome"
)

func listDevicesHandler(log zerolog.Logger, ctl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "list-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		u := userFromContext(r.Context())
		devices := smarthome.ListDevices(ctl, u.Chat)

		requestLogger.Info().Int("count", len(devices)).Msg("returning user devices")
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
	}
}

type deviceIDRequest struct {
	Devices []struct {
		ID string `json:"id"`
	} `json:"devices"`
}

type queryResult struct {
	ID         string `json:"id"`
	ErrorCode  string `json:"error_code,omitempty"`
	*smarthome.Device `json:",omitempty"`
}

func queryDevicesHandler(log zerolog.Logger, ctl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "query-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var req deviceIDRequest
		if err = readJSON(r, &req); err != nil {
			requestLogger.Warn().Err(err).Msg("unable to decode query body")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		u := userFromContext(r.Context())
		results := make([]queryResult, 0, len(req.Devices))

		for _, d := range req.Devices {
			device, qerr := smarthome.QueryDevice(ctl, u.Chat, d.ID)
			if qerr != nil {
				results = append(results, queryResult{ID: d.ID, ErrorCode: qerr.Error()})
				continue
			}
			results = append(results, queryResult{ID: d.ID, Device: &device})
		}

		writeJSON(w, http.StatusOK, map[string]any{"devices": results})
	}
}

type actionRequestBody struct {
	Payload struct {
		Devices []struct {
			ID           string `json:"id"`
			Capabilities []struct {
				Type  string         `json:"type"`
				State map[string]any `json:"state"`
			} `json:"capabilities"`
		} `json:"devices"`
	} `json:"payload"`
}

type actionResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func actionDevicesHandler(log zerolog.Logger, ctl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "action-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, _, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var req actionRequestBody
		if err = readJSON(r, &req); err != nil {
			requestLogger.Warn().Err(err).Msg("unable to decode action body")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		u := userFromContext(r.Context())
		results := make([]actionResult, 0, len(req.Payload.Devices))

		for _, d := range req.Payload.Devices {
			requests := make([]smarthome.ActionRequest, 0, len(d.Capabilities))
			for _, c := range d.Capabilities {
				requests = append(requests, smarthome.ActionRequest{Type: c.Type, State: c.State})
			}

			aerr := smarthome.ActionDevice(ctl, u.Chat, d.ID, requests)
			if aerr != nil {
				results = append(results, actionResult{ID: d.ID, Status: aerr.Error()})
				continue
			}
			results = append(results, actionResult{ID: d.ID, Status: "DONE"})
		}

		writeJSON(w, http.StatusOK, map[string]any{"devices": results})
	}
}

// internal/relay/handler.go
//
// HTTP handler that turns one browser submission into one delivery call.
//
// Context
// -------
// Each request walks the same life-cycle:
//
//	Received → HoneypotChecked → Validated → PayloadBuilt → Relayed → ResponseMapped
//
// Validation failures and honeypot trips jump straight to ResponseMapped.
// The response is always JSON of the shape
//
//	{ "success": bool, "message"?: string, ...upstream fields }
//
// Status mapping
// --------------
//   • 200  delivered (upstream 2xx with success=true), or honeypot tripped
//   • 400  unknown form type, or a validation failure
//   • 500  bad body, missing credential, upstream failure, or panic
//
// Notes
// -----
// • CORS and rate limiting are applied by middleware in front of this
//   handler; OPTIONS never reaches it.
// • The access key is never logged.  Payloads are logged only via
//   Payload.Redacted at debug level.
// • The outbound deadline derives from the inbound context, so a client
//   disconnect cancels the delivery call too.
//
//------------------------------------------------------------------------------

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yanizio/concierge/internal/form"
	"github.com/yanizio/concierge/internal/logger"
	"github.com/yanizio/concierge/internal/metrics"
	"github.com/yanizio/concierge/internal/requestinfo"
)

// Client-facing messages for failures whose details stay server-side.
const (
	MsgServerError  = "Server error. Please try again."
	MsgConfigError  = "Server configuration error."
	MsgNotDelivered = "Submission failed. Please try again."
	MsgInvalidType  = "Invalid form type"
)

// TypeField selects the form on the combined endpoint.
const TypeField = "type"

const unknownForm = "unknown"

// Config bounds a single request.
type Config struct {
	Timeout      time.Duration // outbound call deadline
	MaxBodyBytes int64         // inbound body cap
}

// Handler relays validated submissions through a Sender.
type Handler struct {
	sender Sender
	keys   KeySource
	cfg    Config
}

// New returns a Handler.  Zero Config fields fall back to 10s and 64 KiB.
func New(sender Sender, keys KeySource, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	return &Handler{sender: sender, keys: keys, cfg: cfg}
}

// Form serves a single fixed form, e.g. the dedicated intake endpoint.
func (h *Handler) Form(formID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, func(map[string]any) (string, bool) { return formID, true })
	}
}

// Typed serves the combined endpoint, choosing the form from the body's
// "type" field.
func (h *Handler) Typed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, func(raw map[string]any) (string, bool) {
			id, _ := raw[TypeField].(string)
			if _, ok := form.GetFormDef(id); !ok {
				return "", false
			}
			return id, true
		})
	}
}

// -----------------------------------------------------------------------------
// Life-cycle
// -----------------------------------------------------------------------------

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, pick func(map[string]any) (string, bool)) {
	ctx := r.Context()
	log := logger.FromContext(ctx).With(requestFields(r)...)
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	formID := unknownForm

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("relay panic", "form", formID, "panic", rec)
			metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomePanic).Inc()
			if ww.Status() == 0 {
				writeJSON(ww, http.StatusInternalServerError, failure(MsgServerError))
			}
		}
	}()

	// Received
	r.Body = http.MaxBytesReader(ww, r.Body, h.cfg.MaxBodyBytes)
	raw, err := form.DecodeBody(r.Body)
	if err != nil {
		log.Warnw("unreadable submission body", "err", err)
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeBadRequest).Inc()
		writeJSON(ww, http.StatusInternalServerError, failure(MsgServerError))
		return
	}

	id, ok := pick(raw)
	if !ok {
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeInvalid).Inc()
		writeJSON(ww, http.StatusBadRequest, failure(MsgInvalidType))
		return
	}
	formID = id
	log = log.With("form", formID)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("form.id", formID))

	// HoneypotChecked, Validated
	res, err := form.Submit(formID, raw)
	if err != nil {
		var ve form.ValidationError
		if !errors.As(err, &ve) {
			log.Errorw("validation failed unexpectedly", "err", err)
			metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeBadRequest).Inc()
			writeJSON(ww, http.StatusInternalServerError, failure(MsgServerError))
			return
		}
		log.Infow("submission rejected", "field", firstField(ve), "reason", ve.Message())
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeInvalid).Inc()
		writeJSON(ww, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": ve.Message(),
			"errors":  ve.Fields,
		})
		return
	}
	if res.Spam {
		log.Infow("honeypot tripped")
		metrics.HoneypotTripsTotal.WithLabelValues(formID).Inc()
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeSpam).Inc()
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("form.spam", true))
		writeJSON(ww, http.StatusOK, map[string]any{"success": true})
		return
	}
	for _, d := range res.Dropped {
		log.Infow("dropped unrecognized option", "field", d.Field, "value", d.Value)
		metrics.UnrecognizedValuesTotal.WithLabelValues(formID, d.Field).Inc()
	}

	// PayloadBuilt
	key, err := h.keys.AccessKey(ctx)
	if err == nil && key == "" {
		err = ErrMissingAccessKey
	}
	if err != nil {
		log.Errorw("relay access key unavailable", "err", err)
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeConfigError).Inc()
		writeJSON(ww, http.StatusInternalServerError, failure(MsgConfigError))
		return
	}
	payload, err := form.BuildPayload(res, key)
	if err != nil {
		log.Errorw("build payload", "err", err)
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeConfigError).Inc()
		writeJSON(ww, http.StatusInternalServerError, failure(MsgServerError))
		return
	}
	log.Debugw("relaying submission", "payload", payload.Redacted())

	// Relayed
	reply, err := h.relay(ctx, formID, payload)
	if err != nil {
		log.Errorw("delivery call failed", "err", err)
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeUpstreamErr).Inc()
		writeJSON(ww, http.StatusInternalServerError, failure(MsgServerError))
		return
	}

	// ResponseMapped
	status, body := mapReply(reply)
	if status == http.StatusOK {
		log.Infow("submission delivered")
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeSent).Inc()
	} else {
		log.Warnw("delivery rejected", "upstream_status", reply.StatusCode, "upstream_message", reply.Message())
		metrics.SubmissionsTotal.WithLabelValues(formID, metrics.OutcomeRejected).Inc()
	}
	writeJSON(ww, status, body)
}

func (h *Handler) relay(ctx context.Context, formID string, p form.Payload) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := h.sender.Send(ctx, p)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !reply.Success():
		result = "rejected"
	}
	metrics.UpstreamDuration.WithLabelValues(formID, result).Observe(time.Since(start).Seconds())
	return reply, err
}

// mapReply forwards the upstream body, forcing status 200 only for a clean
// success and filling a message when a failure carries none.
func mapReply(reply *Reply) (int, map[string]any) {
	body := make(map[string]any, len(reply.Body)+2)
	for k, v := range reply.Body {
		body[k] = v
	}
	if reply.Success() {
		return http.StatusOK, body
	}
	body["success"] = false
	if reply.Message() == "" {
		body["message"] = MsgNotDelivered
	}
	return http.StatusInternalServerError, body
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "message": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func firstField(ve form.ValidationError) string {
	if len(ve.Fields) == 0 {
		return ""
	}
	return ve.Fields[0].Name
}

func requestFields(r *http.Request) []any {
	ri := requestinfo.FromContext(r.Context())
	if ri == nil {
		return nil
	}
	return []any{"ip", ri.ClientIP(), "country", ri.Geo.CountryISO, "bot", ri.UA.IsBot}
}

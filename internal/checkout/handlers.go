package checkout

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/events"
	"github.com/noah-isme/market-shopper/internal/navigation"
	"github.com/noah-isme/market-shopper/internal/obs"
	"github.com/noah-isme/market-shopper/internal/order"
	"github.com/noah-isme/market-shopper/internal/payment"
	"github.com/noah-isme/market-shopper/internal/pricing"
	"github.com/noah-isme/market-shopper/internal/relay"
)

// Handler exposes the engine over HTTP. Every route except the webhook expects a session on
// the request context.
type Handler struct {
	Svc      *Service
	Payments payment.Provider
	Replay   payment.ReplayGuard
	Events   *events.Bus
	Logger   zerolog.Logger
}

// DraftRoutes mounts the session-scoped routes.
func (h *Handler) DraftRoutes(r chi.Router) {
	r.Get("/draft", h.GetDraft)
	r.Delete("/draft", h.DiscardDraft)
	r.Put("/draft/client", h.PutClient)
	r.Put("/draft/details", h.PutDetails)
	r.Post("/draft/items", h.PostItem)
	r.Patch("/draft/items/{index}", h.PatchItem)
	r.Delete("/draft/items/{index}", h.DeleteItem)
	r.Get("/draft/breakdown", h.GetBreakdown)
	r.Post("/draft/validate", h.PostValidate)
	r.Post("/payments/callback", h.PaymentCallback)
	r.Get("/view", h.GetView)
	r.Post("/view", h.PostView)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	id, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return "", false
	}
	return id, true
}

// GetDraft handles GET /api/v1/draft.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Draft(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// DiscardDraft handles DELETE /api/v1/draft.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Discard(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutClient handles PUT /api/v1/draft/client.
func (h *Handler) PutClient(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var in order.ClientInfo
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateClient(r.Context(), sid, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// PutDetails handles PUT /api/v1/draft/details.
func (h *Handler) PutDetails(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var in DetailsInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateDetails(r.Context(), sid, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// PostItem handles POST /api/v1/draft/items. An empty body appends an empty row.
func (h *Handler) PostItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var item *order.Item
	if r.ContentLength != 0 {
		var in order.Item
		if err := common.DecodeJSON(r, &in); err != nil {
			var appErr *common.AppError
			if !errors.As(err, &appErr) || !errors.Is(appErr.Err, io.EOF) {
				h.writeError(w, err)
				return
			}
		} else {
			item = &in
		}
	}
	view, err := h.Svc.AddItem(r.Context(), sid, item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// PatchItem handles PATCH /api/v1/draft/items/{index} with a field->value object.
func (h *Handler) PatchItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := itemIndex(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var fields map[string]string
	if err := common.DecodeJSON(r, &fields); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateItem(r.Context(), sid, index, fields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// DeleteItem handles DELETE /api/v1/draft/items/{index}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := itemIndex(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.RemoveItem(r.Context(), sid, index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// GetBreakdown handles GET /api/v1/draft/breakdown.
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	bd, err := h.Svc.Breakdown(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": bd})
}

// PostValidate handles POST /api/v1/draft/validate. A failed validation is still a 200.
func (h *Handler) PostValidate(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Validate(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Submit handles POST /api/v1/draft/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var in SubmitInput
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &in); err != nil {
			var appErr *common.AppError
			if !errors.As(err, &appErr) || !errors.Is(appErr.Err, io.EOF) {
				h.writeError(w, err)
				return
			}
		}
	}
	out, err := h.Svc.Submit(r.Context(), sid, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if out.Status == StatusSubmitted && !out.Discarded {
		status = http.StatusCreated
	}
	common.JSON(w, status, map[string]any{"data": out})
}

type callbackInput struct {
	Reference string `json:"reference"`
	Cancelled bool   `json:"cancelled"`
}

// PaymentCallback handles POST /api/v1/payments/callback from the payment widget.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var in callbackInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	if in.Cancelled {
		view, err := h.Svc.CancelPayment(r.Context(), sid)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"outcome": "cancelled", "view": view}})
		return
	}
	view, err := h.Svc.CompletePayment(r.Context(), sid, in.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"outcome":   "completed",
		"reference": strings.TrimSpace(in.Reference),
		"view":      view,
	}})
}

// GetView handles GET /api/v1/view.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := h.Svc.Views().Current(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

type viewInput struct {
	View    string                     `json:"view"`
	Payment *navigation.PaymentPayload `json:"payment"`
}

// PostView handles POST /api/v1/view.
func (h *Handler) PostView(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var in viewInput
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := navigation.Parse(in.View)
	if err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.Svc.Views().Navigate(r.Context(), sid, view, in.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": st})
}

// Zones handles GET /api/v1/reference/zones.
func (h *Handler) Zones(w http.ResponseWriter, _ *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	s := h.Svc.Schedule()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": h.Svc.Zones(),
		"fees": map[string]any{
			"baseFee":     s.BaseFee,
			"serviceRate": s.ServiceRate,
			"priorityFee": s.PriorityFee(pricing.PriorityExpress),
			"note":        s.FeeNote(),
		},
	})
}

// ShoppingTypes handles GET /api/v1/reference/shopping-types.
func (h *Handler) ShoppingTypes(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{
		"data":  order.ShoppingTypes(),
		"units": order.Units(),
	})
}

// PaystackWebhook handles POST /api/v1/webhooks/paystack. A verified charge.success completes
// the session named in the transaction metadata.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	const provider = "paystack"
	if h.Svc == nil || h.Payments == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "payment provider not configured", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read body", nil)
		return
	}
	res, err := h.Payments.VerifyWebhook(r, body)
	if err != nil {
		h.countWebhook(provider, "unconfigured")
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "webhook verification not configured", nil)
		return
	}
	if !res.Valid {
		h.countWebhook(provider, "invalid")
		h.Logger.Warn().Err(res.Err).Str("provider", provider).Msg("payment_webhook_rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature invalid", nil)
		return
	}
	fresh, err := h.Replay.Acquire(r.Context(), provider, body)
	if err != nil {
		h.countWebhook(provider, "error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay guard unavailable", nil)
		return
	}
	if !fresh {
		h.countWebhook(provider, "duplicate")
		common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	if res.SessionID != "" && h.Events != nil {
		if _, err := h.Events.Emit(r.Context(), events.TopicPaymentWebhookHit, res.SessionID, map[string]any{
			"event":       res.Event,
			"reference":   res.Reference,
			"status":      res.Status,
			"amountMinor": res.AmountMinor,
		}); err != nil {
			h.Logger.Warn().Err(err).Msg("event_emit_failed")
		}
	}
	if res.Event != "charge.success" || res.Status != "success" || res.SessionID == "" {
		h.countWebhook(provider, "ignored")
		common.JSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}
	if _, err := h.Svc.CompletePayment(r.Context(), res.SessionID, res.Reference); err != nil {
		_ = h.Replay.Release(r.Context(), provider, body)
		h.countWebhook(provider, "error")
		h.writeError(w, err)
		return
	}
	h.countWebhook(provider, "completed")
	common.JSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

func (h *Handler) countWebhook(provider, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
	}
}

func itemIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, common.NewAppError("INVALID_INDEX", "item index must be a non-negative integer", http.StatusBadRequest, err)
	}
	return index, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		appErr     *common.AppError
		validation *order.ValidationError
		rejected   *relay.RejectedError
	)
	switch {
	case errors.As(err, &appErr):
		common.WriteError(w, appErr)
	case errors.As(err, &validation):
		common.JSONError(w, http.StatusUnprocessableEntity, string(validation.Result.Kind), validation.Result.Message, validation.Result)
	case errors.As(err, &rejected):
		common.JSONError(w, http.StatusUnprocessableEntity, "SUBMISSION_REJECTED", rejected.Error(), map[string]any{"status": rejected.Status})
	case errors.Is(err, relay.ErrTransient):
		common.JSONError(w, http.StatusBadGateway, "TRANSIENT_NETWORK_FAILURE", "Oops! Network error.", nil)
	case errors.Is(err, ErrSubmissionInFlight):
		common.JSONError(w, http.StatusConflict, "SUBMISSION_IN_FLIGHT", "a submission is already in progress", nil)
	case errors.Is(err, ErrAlreadySubmitted):
		common.JSONError(w, http.StatusConflict, "ALREADY_SUBMITTED", "this list was already submitted", nil)
	case errors.Is(err, ErrGuardUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "GUARD_UNAVAILABLE", "submission guard unavailable, try again", nil)
	case errors.Is(err, payment.ErrUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "instant payment is currently unavailable", nil)
	case errors.Is(err, payment.ErrNotLoaded):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_LOADED", "Payment system not fully loaded.", nil)
	case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrInvalidEmail):
		common.JSONError(w, http.StatusUnprocessableEntity, "PAYMENT_INVALID", err.Error(), nil)
	case errors.Is(err, ErrReferenceRequired):
		common.JSONError(w, http.StatusBadRequest, "REFERENCE_REQUIRED", "payment reference is required", nil)
	case errors.Is(err, order.ErrItemIndex):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, order.ErrUnknownField), errors.Is(err, ErrInvalidDetails), errors.Is(err, order.ErrInvalidUnit):
		common.JSONError(w, http.StatusBadRequest, "INVALID_FIELD", err.Error(), nil)
	case errors.Is(err, navigation.ErrUnknownView):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_VIEW", err.Error(), nil)
	default:
		h.Logger.Error().Err(err).Msg("checkout_request_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}

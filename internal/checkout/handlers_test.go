package checkout_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/checkout"
	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/draft"
	"github.com/noah-isme/market-shopper/internal/navigation"
	"github.com/noah-isme/market-shopper/internal/order"
	"github.com/noah-isme/market-shopper/internal/payment"
	"github.com/noah-isme/market-shopper/internal/pricing"
	"github.com/noah-isme/market-shopper/internal/relay"
)

const webhookSecret = "sk_test_secret"

func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), sid)))
	})
}

func newRouter(t *testing.T, f fixture, replay payment.ReplayGuard) http.Handler {
	t.Helper()
	h := &checkout.Handler{
		Svc:      f.svc,
		Payments: payment.Paystack{PublicKey: pubKey, SecretKey: webhookSecret, Enabled: true},
		Replay:   replay,
		Logger:   zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reference/zones", h.Zones)
		r.Get("/reference/shopping-types", h.ShoppingTypes)
		r.Post("/webhooks/paystack", h.PaystackWebhook)
		r.Group(func(r chi.Router) {
			r.Use(withSession)
			h.DraftRoutes(r)
			r.Post("/draft/submit", h.Submit)
		})
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func TestDraftRoutesBuildAnOrder(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodPut, "/api/v1/draft/client", `{"name":" Ada ","phone":"0803","email":"ada@example.com","address":"Yaba"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPatch, "/api/v1/draft/items/0", `{"item":"Rice","quantity":"1","budget":"20000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/api/v1/draft/items", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = do(t, h, http.MethodPatch, "/api/v1/draft/items/1", `{"item":"Beans","quantity":"2","budget":"15000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPut, "/api/v1/draft/details", `{"zone":"`+yaba+`","pricingMode":"budget"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/v1/draft/breakdown", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var bd checkout.BreakdownView
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &bd))
	require.Equal(t, int64(51000), bd.FinalAmount)

	rr = do(t, h, http.MethodGet, "/api/v1/draft", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view checkout.DraftView
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &view))
	require.Equal(t, "Ada", view.Draft.Client.Name)
	require.Len(t, view.Draft.Items, 2)
	require.Equal(t, order.ModeBudget, view.Draft.Mode)

	rr = do(t, h, http.MethodPost, "/api/v1/draft/validate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var res order.ValidationResult
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &res))
	require.True(t, res.OK)

	rr = do(t, h, http.MethodDelete, "/api/v1/draft/items/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodDelete, "/api/v1/draft/items/5", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "ITEM_NOT_FOUND", decode(t, rr).Error.Code)
	rr = do(t, h, http.MethodDelete, "/api/v1/draft/items/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/v1/draft/details", `{"priority":"overnight"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodPut, "/api/v1/draft/details", `{"colour":"red"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_BODY", decode(t, rr).Error.Code)

	rr = do(t, h, http.MethodDelete, "/api/v1/draft", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Zero(t, f.store.Len(sid))
}

func TestSubmitRouteReportsValidationFailure(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	c := seed(t, f, order.ModeBudget, pricing.PriorityStandard)
	c.Items[0].Budget = "0"
	require.NoError(t, draft.Save(context.Background(), f.store, sid, c))
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodPost, "/api/v1/draft/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	env := decode(t, rr)
	require.Equal(t, string(order.KindBudgetRequired), env.Error.Code)
	var details order.ValidationResult
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	require.Equal(t, []int{0}, details.InvalidRows)
	require.True(t, details.HighlightBudgetErrors)
}

func TestSubmitRouteMapsRelayErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rejected", &relay.RejectedError{Status: 422, Messages: []string{"email is invalid"}}, http.StatusUnprocessableEntity, "SUBMISSION_REJECTED"},
		{"transient", relay.ErrTransient, http.StatusBadGateway, "TRANSIENT_NETWORK_FAILURE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &stubSender{err: tc.err}, nil, nil)
			seed(t, f, order.ModeQuote, pricing.PriorityStandard)
			rr := do(t, newRouter(t, f, payment.ReplayGuard{}), http.MethodPost, "/api/v1/draft/submit", `{"notes":"ring twice"}`)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.code, decode(t, rr).Error.Code)
		})
	}
}

func TestSubmitRouteQuoteSuccess(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	seed(t, f, order.ModeQuote, pricing.PriorityStandard)
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodPost, "/api/v1/draft/submit", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out checkout.Outcome
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &out))
	require.Equal(t, checkout.StatusSubmitted, out.Status)

	rr = do(t, h, http.MethodPost, "/api/v1/draft/submit", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "ALREADY_SUBMITTED", decode(t, rr).Error.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/view", "")
	var st navigation.State
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &st))
	require.Equal(t, navigation.ViewSubmitted, st.View)
}

func TestPaymentCallbackRoute(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	seed(t, f, order.ModeBudget, pricing.PriorityStandard)
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodPost, "/api/v1/draft/submit", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out checkout.Outcome
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &out))
	require.Equal(t, pubKey, out.Payment.PublicKey)

	rr = do(t, h, http.MethodPost, "/api/v1/payments/callback", `{"cancelled":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, len(draft.AllKeys()), f.store.Len(sid))

	rr = do(t, h, http.MethodPost, "/api/v1/payments/callback", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "REFERENCE_REQUIRED", decode(t, rr).Error.Code)

	rr = do(t, h, http.MethodPost, "/api/v1/payments/callback", `{"reference":"`+out.Payment.Reference+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Zero(t, f.store.Len(sid))
}

func TestViewRoutes(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodGet, "/api/v1/view", "")
	var st navigation.State
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &st))
	require.Equal(t, navigation.ViewOrder, st.View)

	rr = do(t, h, http.MethodPost, "/api/v1/view", `{"view":"prices"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/v1/view", `{"view":"checkout"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "UNKNOWN_VIEW", decode(t, rr).Error.Code)
}

func TestReferenceRoutes(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	h := newRouter(t, f, payment.ReplayGuard{})

	rr := do(t, h, http.MethodGet, "/api/v1/reference/zones", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var zones []checkout.ZoneOption
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &zones))
	require.Len(t, zones, len(pricing.DefaultSchedule().Zones))

	rr = do(t, h, http.MethodGet, "/api/v1/reference/shopping-types", "")
	var types []order.ShoppingType
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &types))
	require.Equal(t, order.ShoppingTypes(), types)
}

func signedWebhook(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewBufferString(body))
	req.Header.Set(payment.SignatureHeader, payment.ComputeSignature(webhookSecret, []byte(body)))
	return req
}

func TestPaystackWebhookCompletesSession(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	f := newFixture(t, nil, nil, nil)
	seed(t, f, order.ModeBudget, pricing.PriorityStandard)
	h := newRouter(t, f, payment.ReplayGuard{Client: client, TTL: time.Minute})

	body := `{"event":"charge.success","data":{"reference":"ms_1","amount":5100000,"status":"success","customer":{"email":"ada@example.com"},"metadata":{"session_id":"` + sid + `"}}}`

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedWebhook(t, body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "completed")
	require.Zero(t, f.store.Len(sid))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, signedWebhook(t, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "duplicate")

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(body))
	bad.Header.Set(payment.SignatureHeader, "deadbeef")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, bad)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPaystackWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	seed(t, f, order.ModeBudget, pricing.PriorityStandard)
	h := newRouter(t, f, payment.ReplayGuard{})

	body := `{"event":"transfer.success","data":{"reference":"tr_1","amount":100,"status":"success","metadata":{"session_id":"` + sid + `"}}}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedWebhook(t, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ignored")
	require.Equal(t, len(draft.AllKeys()), f.store.Len(sid))
}

func TestRoutesRequireSession(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	h := &checkout.Handler{Svc: f.svc}
	rr := httptest.NewRecorder()
	h.GetDraft(rr, httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

package common_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/common"
)

func TestWriteErrorUsesAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("ZONE_REQUIRED", "pick a zone", http.StatusUnprocessableEntity, nil).WithDetails(map[string]any{"kind": "ZoneRequired"}))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"error":{"code":"ZONE_REQUIRED","message":"pick a zone","details":{"kind":"ZoneRequired"}}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Zone string `json:"zone"`
	}
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"zone":"x","extra":1}`))
	err := common.DecodeJSON(req, &dst)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"zone":"x"}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, "x", dst.Zone)
}

func TestSessionIDContext(t *testing.T) {
	_, ok := common.SessionID(context.Background())
	require.False(t, ok)
	id, ok := common.SessionID(common.WithSessionID(context.Background(), "s1"))
	require.True(t, ok)
	require.Equal(t, "s1", id)
}

func TestIdempotencyMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusOK
	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	do := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("Idempotency-Key", "k1")
		req = req.WithContext(common.WithSessionID(req.Context(), session))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, do("s1"))
	require.Equal(t, http.StatusConflict, do("s1"))
	require.Equal(t, http.StatusOK, do("s2"))

	status = http.StatusBadGateway
	require.Equal(t, http.StatusBadGateway, do("s3"))
	status = http.StatusOK
	require.Equal(t, http.StatusOK, do("s3"))
}

func TestIdempotencyReleasesKeyOnClientErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	statuses := []int{http.StatusUnprocessableEntity, http.StatusConflict, http.StatusOK}
	calls := 0
	h := common.Idem{R: client, TTL: 24 * time.Hour}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/draft/submit", nil)
		req.Header.Set("Idempotency-Key", "fix-and-retry")
		req = req.WithContext(common.WithSessionID(req.Context(), "s1"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	// validation failure, then the in-flight guard, then success: each retry reaches the handler
	require.Equal(t, http.StatusUnprocessableEntity, do().Code)
	require.Empty(t, mr.Keys())
	require.Equal(t, http.StatusConflict, do().Code)
	require.Empty(t, mr.Keys())
	require.Equal(t, http.StatusOK, do().Code)
	require.Equal(t, 3, calls)
	require.Len(t, mr.Keys(), 1)

	replay := do()
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Contains(t, replay.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 3, calls)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, "10.0.0.1", common.ClientIP(req))
}

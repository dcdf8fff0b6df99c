package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/session"
)

func newService(t *testing.T, now func() time.Time) *session.Service {
	t.Helper()
	svc, err := session.NewService(session.Config{
		Secret:   "0123456789abcdef0123456789abcdef",
		Issuer:   "market-shopper",
		Audience: "market-shopper-web",
		TTL:      time.Hour,
		Now:      now,
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndParse(t *testing.T) {
	svc := newService(t, nil)
	issued, err := svc.Issue()
	require.NoError(t, err)
	require.NotEmpty(t, issued.SessionID)

	id, err := svc.Parse(issued.Token)
	require.NoError(t, err)
	require.Equal(t, issued.SessionID, id)
}

func TestParseRejectsExpired(t *testing.T) {
	start := time.Now()
	current := start
	svc := newService(t, func() time.Time { return current })
	issued, err := svc.Issue()
	require.NoError(t, err)

	current = start.Add(2 * time.Hour)
	_, err = svc.Parse(issued.Token)
	require.Error(t, err)
	require.True(t, common.IsAppError(err))
}

func TestParseRejectsForeignSecretAndAlgorithm(t *testing.T) {
	svc := newService(t, nil)

	tok, err := jwt.NewBuilder().Subject("5f1d7c9e-0000-4000-8000-000000000000").Issuer("market-shopper").
		Audience([]string{"market-shopper-web"}).Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)

	forged, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("another-secret-another-secret-xx")))
	require.NoError(t, err)
	_, err = svc.Parse(string(forged))
	require.Error(t, err)

	hs512, err := jwt.Sign(tok, jwt.WithKey(jwa.HS512, []byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	_, err = svc.Parse(string(hs512))
	require.Error(t, err)
}

func TestRequireSession(t *testing.T) {
	svc := newService(t, nil)
	issued, err := svc.Issue()
	require.NoError(t, err)

	var seen string
	h := session.Middleware{Service: svc}.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.SessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, issued.SessionID, seen)
}

func TestCreateHandler(t *testing.T) {
	svc := newService(t, nil)
	rr := httptest.NewRecorder()
	session.Handler{Service: svc}.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	var body session.Issued
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	id, err := svc.Parse(body.Token)
	require.NoError(t, err)
	require.Equal(t, body.SessionID, id)
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := session.NewService(session.Config{})
	require.Error(t, err)
}

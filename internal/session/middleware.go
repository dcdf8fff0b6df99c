package session

import (
	"net/http"
	"strings"

	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/obs"
)

// Middleware resolves the draft session from the Authorization header.
type Middleware struct {
	Service *Service
}

// RequireSession rejects requests without a valid bearer session token.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token", nil)
			return
		}
		id, err := m.Service.Parse(token)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		obs.AnnotateSession(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Handler exposes session issuance over HTTP.
type Handler struct {
	Service *Service
}

// Create issues a new anonymous draft session.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "session service not configured", nil)
		return
	}
	issued, err := h.Service.Issue()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_ISSUE_FAILED", "unable to create session", nil)
		return
	}
	common.JSON(w, http.StatusCreated, issued)
}

package catalog

import (
	"net/http"
	"strings"

	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/order"
)

// Handler exposes the price checker.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Prices handles GET /api/v1/prices?category=&q=.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	query := r.URL.Query()
	category := strings.TrimSpace(query.Get("category"))
	if category == "" {
		category = string(order.ShoppingTypes()[0])
	}
	term := query.Get("q")
	common.JSON(w, http.StatusOK, map[string]any{
		"category":   category,
		"term":       term,
		"categories": h.service.Categories(),
		"data":       h.service.Search(category, term),
	})
}

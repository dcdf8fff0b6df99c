package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/market-shopper/internal/catalog"
	"github.com/noah-isme/market-shopper/internal/order"
)

func TestSearch(t *testing.T) {
	svc := catalog.NewService(nil)

	require.Len(t, svc.Search("General Groceries", ""), 5)

	hits := svc.Search("General Groceries", "RICE")
	require.Len(t, hits, 1)
	require.Equal(t, int64(65000), hits[0].Price)

	require.Len(t, svc.Search("Electronics/Gadgets", "  tv "), 1)
	require.Empty(t, svc.Search("Apparel/Fashion", "laptop"))
	require.Empty(t, svc.Search("Furniture", ""))
}

func TestCategoriesFollowShoppingTypeOrder(t *testing.T) {
	svc := catalog.NewService(map[order.ShoppingType][]catalog.Price{
		"Zeta":              {{Item: "z"}},
		"Apparel/Fashion":   {{Item: "a"}},
		"General Groceries": {{Item: "g"}},
	})
	require.Equal(t, []order.ShoppingType{"General Groceries", "Apparel/Fashion", "Zeta"}, svc.Categories())
}

func TestPricesHandler(t *testing.T) {
	h := catalog.NewHandler(catalog.NewService(nil))

	rr := httptest.NewRecorder()
	h.Prices(rr, httptest.NewRequest(http.MethodGet, "/api/v1/prices?q=beans", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Category string          `json:"category"`
		Data     []catalog.Price `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "General Groceries", body.Category)
	require.Len(t, body.Data, 1)
	require.Equal(t, "Beans (Bag)", body.Data[0].Item)

	rr = httptest.NewRecorder()
	h.Prices(rr, httptest.NewRequest(http.MethodGet, "/api/v1/prices?category=Unknown", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Data)
}

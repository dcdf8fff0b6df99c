package catalog

import (
	"sort"
	"strings"

	"github.com/noah-isme/market-shopper/internal/order"
)

// Price is one entry on the estimated market price list.
type Price struct {
	Item        string `json:"item"`
	Price       int64  `json:"price"`
	Unit        string `json:"unit"`
	LastUpdated string `json:"lastUpdated"`
}

// Service answers price lookups against a fixed list keyed by shopping category.
type Service struct {
	prices map[order.ShoppingType][]Price
}

// NewService builds a Service over the given list. A nil list uses DefaultPrices.
func NewService(prices map[order.ShoppingType][]Price) *Service {
	if prices == nil {
		prices = DefaultPrices()
	}
	return &Service{prices: prices}
}

// DefaultPrices returns the published estimates. Prices move with the market.
func DefaultPrices() map[order.ShoppingType][]Price {
	const updated = "Dec 2025"
	return map[order.ShoppingType][]Price{
		"General Groceries": {
			{Item: "Rice (50kg Bag)", Price: 65000, Unit: "bag", LastUpdated: updated},
			{Item: "Beans (Bag)", Price: 42000, Unit: "bag", LastUpdated: updated},
			{Item: "Tomato Paste (Crate of 100)", Price: 18000, Unit: "crate", LastUpdated: updated},
			{Item: "Vegetable Oil (5Litre)", Price: 9500, Unit: "pcs", LastUpdated: updated},
			{Item: "Titus Sardines (Carton)", Price: 16000, Unit: "carton", LastUpdated: updated},
		},
		"Electronics/Gadgets": {
			{Item: "Smartphone (Mid-Range)", Price: 180000, Unit: "pcs", LastUpdated: updated},
			{Item: "Laptop (Standard)", Price: 450000, Unit: "pcs", LastUpdated: updated},
			{Item: `Smart TV (50")`, Price: 320000, Unit: "pcs", LastUpdated: updated},
		},
		"Apparel/Fashion": {
			{Item: "Men's Designer Shoes", Price: 45000, Unit: "pair", LastUpdated: updated},
			{Item: "Ladies Handbag (Leather)", Price: 30000, Unit: "pcs", LastUpdated: updated},
		},
	}
}

// Categories returns the categories that carry estimates, in shopping type display order.
func (s *Service) Categories() []order.ShoppingType {
	out := make([]order.ShoppingType, 0, len(s.prices))
	seen := make(map[order.ShoppingType]bool, len(s.prices))
	for _, t := range order.ShoppingTypes() {
		if _, ok := s.prices[t]; ok {
			out = append(out, t)
			seen[t] = true
		}
	}
	var extra []order.ShoppingType
	for t := range s.prices {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Search returns the category's entries whose name contains term, ignoring case.
// An empty term returns the whole category; an unknown category returns nothing.
func (s *Service) Search(category, term string) []Price {
	entries := s.prices[order.ShoppingType(category)]
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]Price, 0, len(entries))
	for _, p := range entries {
		if needle == "" || strings.Contains(strings.ToLower(p.Item), needle) {
			out = append(out, p)
		}
	}
	return out
}

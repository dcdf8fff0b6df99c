package order

import (
	"github.com/noah-isme/market-shopper/internal/pricing"
)

// Unit is the measure a shopping list quantity is expressed in.
type Unit string

const (
	UnitPieces Unit = "pcs"
	UnitKg     Unit = "kg"
	UnitBags   Unit = "bags"
	UnitCrates Unit = "crates"
	UnitOther  Unit = "other"
)

// Units lists every accepted unit in display order.
func Units() []Unit {
	return []Unit{UnitPieces, UnitKg, UnitBags, UnitCrates, UnitOther}
}

// PricingMode selects between paying now and waiting for a shopper quote.
type PricingMode string

const (
	// ModeBudget is Instant Pay: per-item budgets plus fees are paid immediately.
	ModeBudget PricingMode = "budget"
	// ModeQuote is Quote Later: the list is relayed and a shopper prices it manually.
	ModeQuote PricingMode = "quote"
)

// ShoppingType is one of the fixed shopping categories.
type ShoppingType string

// ShoppingTypes returns the fixed categories in display order. The first entry is the default.
func ShoppingTypes() []ShoppingType {
	return []ShoppingType{
		"General Groceries",
		"Electronics/Gadgets",
		"Apparel/Fashion",
		"Pharmaceuticals/Wellness",
		"Office/Home Supplies",
		"Hardware/Tools",
		"Mixed Basket",
	}
}

// IsShoppingType reports whether the value is one of the fixed categories.
func IsShoppingType(v string) bool {
	for _, t := range ShoppingTypes() {
		if string(t) == v {
			return true
		}
	}
	return false
}

// Item is a single row of the shopping list. Quantity and Budget keep the raw user input;
// Budget is interpreted numerically only when pricing.
type Item struct {
	Name     string `json:"item"`
	Quantity string `json:"quantity"`
	Unit     Unit   `json:"unit" validate:"omitempty,oneof=pcs kg bags crates other"`
	Budget   string `json:"budget"`
	Note     string `json:"note,omitempty"`
}

// ClientInfo identifies the customer. Every field is required at submission.
type ClientInfo struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Address string `json:"address" validate:"required"`
}

// EmergencyContact is an optional fallback person for the delivery.
type EmergencyContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Context aggregates everything needed to price, validate and dispatch an order.
type Context struct {
	Client       ClientInfo       `json:"client"`
	Items        []Item           `json:"items"`
	ShoppingType ShoppingType     `json:"shoppingType"`
	DeliveryTime string           `json:"deliveryTime"`
	Zone         string           `json:"zone"`
	Priority     string           `json:"priority"`
	Mode         PricingMode      `json:"pricingMode"`
	Emergency    EmergencyContact `json:"emergencyContact"`
}

// NewContext returns a draft with every field at its initial value.
func NewContext() Context {
	return Context{
		Items:        NewList(),
		ShoppingType: ShoppingTypes()[0],
		Zone:         pricing.PlaceholderZone,
		Priority:     pricing.PriorityStandard,
		Mode:         ModeQuote,
	}
}

// PricingInput extracts the fields the fee engine depends on.
func (c Context) PricingInput() pricing.Input {
	budgets := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		budgets = append(budgets, it.Budget)
	}
	return pricing.Input{Budgets: budgets, Zone: c.Zone, Priority: c.Priority}
}

// Breakdown prices the context under the provided schedule.
func (c Context) Breakdown(s pricing.Schedule) pricing.Breakdown {
	return pricing.Compute(s, c.PricingInput())
}

package relay

import (
	"fmt"
	"strings"

	"github.com/noah-isme/market-shopper/internal/order"
	"github.com/noah-isme/market-shopper/internal/pricing"
)

// QuoteModeLabel is the pricing mode label sent with shopper-sourced quotes.
const QuoteModeLabel = "Shopper Sourced Quote"

const notApplicable = "N/A"

// Field is one name/value pair of the outgoing form, kept in submission order.
type Field struct {
	Name  string
	Value string
}

// BuildFields serialises an order context into the relay form fields.
func BuildFields(c order.Context, s pricing.Schedule, notes string) []Field {
	return []Field{
		{"name", c.Client.Name},
		{"phone", c.Client.Phone},
		{"email", c.Client.Email},
		{"address", c.Client.Address},
		{"Pricing Mode", QuoteModeLabel},
		{"Shopping Type", string(c.ShoppingType)},
		{"Delivery Time", c.DeliveryTime},
		{"Delivery Zone Estimate", c.Zone},
		{"Delivery Priority", s.PriorityLabel(c.Priority)},
		{"Emergency Contact Name", orNA(c.Emergency.Name)},
		{"Emergency Contact Phone", orNA(c.Emergency.Phone)},
		{"Shopping List", FormatList(c.Items)},
		{"Shopper Note on Fees", s.FeeNote()},
		{"Notes", notes},
	}
}

// FormatList renders the shopping list as numbered human-readable lines.
func FormatList(items []order.Item) string {
	lines := make([]string, 0, len(items))
	for i, it := range items {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s - Qty: %s %s", i+1, it.Name, it.Quantity, it.Unit)
		if note := strings.TrimSpace(it.Note); note != "" {
			fmt.Fprintf(&b, " (Note: %s)", note)
		}
		if budget := strings.TrimSpace(it.Budget); budget != "" {
			fmt.Fprintf(&b, " (Budget: %s)", budget)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notApplicable
	}
	return v
}

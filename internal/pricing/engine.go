package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a whole amount in the base currency unit (naira).
type Money = int64

const (
	// PlaceholderZone is the unselected value of the zone picker.
	PlaceholderZone = "select"
	// PriorityStandard dispatches with the regular queue.
	PriorityStandard = "standard"
	// PriorityExpress dispatches ahead of the regular queue for a surcharge.
	PriorityExpress = "priority"

	DefaultBaseFee     Money = 10000
	DefaultPriorityFee Money = 5000
)

// DefaultServiceRate is the percentage fee applied to the goods budget.
var DefaultServiceRate = decimal.NewFromFloat(0.10)

// ZoneFee is a single row of the transport fee table.
type ZoneFee struct {
	Key string `json:"key"`
	Fee Money  `json:"fee"`
}

// Selectable reports whether the zone can satisfy an instant-pay order.
func (z ZoneFee) Selectable() bool {
	return z.Key != PlaceholderZone
}

// Schedule holds the fee configuration used for every breakdown.
type Schedule struct {
	BaseFee      Money
	ServiceRate  decimal.Decimal
	Zones        []ZoneFee
	PriorityFees map[string]Money
}

// DefaultSchedule returns the Lagos fee schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		BaseFee:     DefaultBaseFee,
		ServiceRate: DefaultServiceRate,
		Zones: []ZoneFee{
			{Key: PlaceholderZone, Fee: 0},
			{Key: "Lagos Mainland - Yaba/Surulere (Zone 1)", Fee: 2500},
			{Key: "Lagos Mainland - Ikeja/Maryland (Zone 2)", Fee: 3500},
			{Key: "Lagos Mainland - Agege/Ogba (Zone 3)", Fee: 4500},
			{Key: "Lagos Island - Lekki Phase 1/Ikoyi (Zone 1)", Fee: 3000},
			{Key: "Lagos Island - V.I./Ajah (Zone 2)", Fee: 4000},
			{Key: "Lagos Outskirts - Ikorodu/Badagry", Fee: 6000},
			{Key: "Other Location (Quote Later)", Fee: 0},
		},
		PriorityFees: map[string]Money{
			PriorityStandard: 0,
			PriorityExpress:  DefaultPriorityFee,
		},
	}
}

// TransportFee looks up the flat fee for a zone. Unknown and placeholder keys cost nothing.
func (s Schedule) TransportFee(zone string) (Money, bool) {
	for _, z := range s.Zones {
		if z.Key == zone {
			return z.Fee, true
		}
	}
	return 0, false
}

// HasZone reports whether the key exists in the transport table.
func (s Schedule) HasZone(zone string) bool {
	_, ok := s.TransportFee(zone)
	return ok
}

// PriorityFee returns the surcharge for the priority level.
func (s Schedule) PriorityFee(priority string) Money {
	return s.PriorityFees[priority]
}

// Input carries the parts of an order that influence its price.
type Input struct {
	Budgets  []string
	Zone     string
	Priority string
}

// Breakdown aggregates computed pricing components. FinalAmount is the only rounded value.
type Breakdown struct {
	GoodsTotal   decimal.Decimal
	BaseFee      Money
	ServiceFee   decimal.Decimal
	TransportFee Money
	PriorityFee  Money
	FinalAmount  Money
}

// Compute calculates the payable amount for the provided order input.
func Compute(s Schedule, in Input) Breakdown {
	goods := GoodsTotal(in.Budgets)
	service := goods.Mul(s.ServiceRate)
	transport, _ := s.TransportFee(in.Zone)
	priority := s.PriorityFee(in.Priority)

	sum := goods.
		Add(decimal.NewFromInt(s.BaseFee)).
		Add(service).
		Add(decimal.NewFromInt(transport)).
		Add(decimal.NewFromInt(priority))

	return Breakdown{
		GoodsTotal:   goods,
		BaseFee:      s.BaseFee,
		ServiceFee:   service,
		TransportFee: transport,
		PriorityFee:  priority,
		FinalAmount:  sum.Ceil().IntPart(),
	}
}

// GoodsTotal sums item budgets exactly.
func GoodsTotal(budgets []string) decimal.Decimal {
	total := decimal.Zero
	for _, raw := range budgets {
		total = total.Add(ParseBudget(raw))
	}
	return total
}

// ParseBudget converts a raw budget field into an amount. Empty, non-numeric and negative
// values count as zero.
func ParseBudget(raw string) decimal.Decimal {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

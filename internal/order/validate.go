package order

import (
	"errors"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/market-shopper/internal/pricing"
)

// FailureKind names the first rule a context failed.
type FailureKind string

const (
	KindIncompleteItem FailureKind = "IncompleteItem"
	KindZoneRequired   FailureKind = "ZoneRequired"
	KindBudgetRequired FailureKind = "BudgetRequired"
	KindZeroAmount     FailureKind = "ZeroAmount"
	KindClientInfo     FailureKind = "ClientInfoRequired"
)

var (
	ErrIncompleteItem = errors.New("order: incomplete item")
	ErrZoneRequired   = errors.New("order: delivery zone required")
	ErrBudgetRequired = errors.New("order: budget required")
	ErrZeroAmount     = errors.New("order: zero amount")
	ErrClientInfo     = errors.New("order: client info required")
)

var kindErrors = map[FailureKind]error{
	KindIncompleteItem: ErrIncompleteItem,
	KindZoneRequired:   ErrZoneRequired,
	KindBudgetRequired: ErrBudgetRequired,
	KindZeroAmount:     ErrZeroAmount,
	KindClientInfo:     ErrClientInfo,
}

// ValidationResult is the outcome of checking a context before submission.
type ValidationResult struct {
	OK                    bool        `json:"ok"`
	Kind                  FailureKind `json:"kind,omitempty"`
	Message               string      `json:"message,omitempty"`
	InvalidRows           []int       `json:"invalidRows,omitempty"`
	Fields                []string    `json:"fields,omitempty"`
	HighlightBudgetErrors bool        `json:"highlightBudgetErrors"`
}

// Err converts a failed result into an error matching the kind's sentinel.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return &ValidationError{Result: r}
}

// ValidationError wraps a failed ValidationResult.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Result.Message
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return kindErrors[e.Result.Kind]
}

// Validator checks order contexts against the fee schedule.
type Validator struct {
	schedule pricing.Schedule
	structs  *validator.Validate
}

// NewValidator builds a validator bound to a fee schedule.
func NewValidator(s pricing.Schedule) *Validator {
	return &Validator{schedule: s, structs: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate applies the submission rules in order and stops at the first failure.
// It never mutates the context.
func (v *Validator) Validate(c Context) ValidationResult {
	if len(c.Items) == 0 || hasIncompleteItem(c.Items) {
		return fail(KindIncompleteItem, "Please add at least one item with a quantity and name.")
	}
	if c.Mode == ModeBudget {
		fee, _ := v.schedule.TransportFee(c.Zone)
		if c.Zone == pricing.PlaceholderZone || fee <= 0 {
			return fail(KindZoneRequired, "For Instant Payment, please select a Delivery Location Zone to calculate transport fee.")
		}
		if rows := rowsMissingBudget(c.Items); len(rows) > 0 || !pricing.GoodsTotal(c.PricingInput().Budgets).IsPositive() {
			res := fail(KindBudgetRequired, "For Instant Payment, you must set a positive budget for *all* items.")
			res.InvalidRows = rows
			res.HighlightBudgetErrors = true
			return res
		}
		if c.Breakdown(v.schedule).FinalAmount <= 0 {
			return fail(KindZeroAmount, "The total final amount must be greater than zero to proceed with instant payment.")
		}
	}
	if fields := v.missingClientFields(c.Client); len(fields) > 0 {
		res := fail(KindClientInfo, "Please provide your name, phone, a valid email and delivery address.")
		res.Fields = fields
		return res
	}
	return ValidationResult{OK: true}
}

// CheckItem validates the enumerated fields of a single row.
func (v *Validator) CheckItem(it Item) error {
	return v.structs.Struct(it)
}

func (v *Validator) missingClientFields(ci ClientInfo) []string {
	err := v.structs.Struct(ci)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"client"}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return fields
}

func hasIncompleteItem(items []Item) bool {
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || strings.TrimSpace(it.Quantity) == "" {
			return true
		}
	}
	return false
}

// rowsMissingBudget returns the indexes of rows whose budget is absent, non-numeric or not positive.
func rowsMissingBudget(items []Item) []int {
	var rows []int
	for i, it := range items {
		d, err := decimal.NewFromString(strings.TrimSpace(it.Budget))
		if err != nil || !d.IsPositive() {
			rows = append(rows, i)
		}
	}
	return rows
}

func fail(kind FailureKind, msg string) ValidationResult {
	return ValidationResult{Kind: kind, Message: msg}
}

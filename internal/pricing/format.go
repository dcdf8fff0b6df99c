package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatNaira renders a whole amount with thousands separators, e.g. 10000 -> "10,000".
func FormatNaira(amount Money) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// RatePercent renders a fractional rate as a percentage string, e.g. 0.1 -> "10".
func RatePercent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String()
}

// FeeNote is the fee disclosure attached to quote submissions.
func (s Schedule) FeeNote() string {
	return fmt.Sprintf("Base Fee: NGN %s, Service Rate: %s%%", FormatNaira(s.BaseFee), RatePercent(s.ServiceRate))
}

// PriorityLabel describes the chosen priority for humans.
func (s Schedule) PriorityLabel(priority string) string {
	if priority == PriorityExpress {
		return fmt.Sprintf("Priority (+NGN %s)", FormatNaira(s.PriorityFee(PriorityExpress)))
	}
	return "Standard"
}

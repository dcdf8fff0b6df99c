package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const yaba = "Lagos Mainland - Yaba/Surulere (Zone 1)"

func TestComputeStandardOrder(t *testing.T) {
	got := Compute(DefaultSchedule(), Input{
		Budgets:  []string{"20000", "15000"},
		Zone:     yaba,
		Priority: PriorityStandard,
	})
	require.True(t, got.GoodsTotal.Equal(decimal.NewFromInt(35000)))
	require.True(t, got.ServiceFee.Equal(decimal.NewFromInt(3500)))
	require.Equal(t, Money(10000), got.BaseFee)
	require.Equal(t, Money(2500), got.TransportFee)
	require.Equal(t, Money(0), got.PriorityFee)
	require.Equal(t, Money(51000), got.FinalAmount)
}

func TestComputePriorityAddsExactlyTheSurcharge(t *testing.T) {
	s := DefaultSchedule()
	in := Input{Budgets: []string{"20000", "15000"}, Zone: yaba, Priority: PriorityStandard}
	standard := Compute(s, in)
	in.Priority = PriorityExpress
	express := Compute(s, in)

	require.Equal(t, Money(56000), express.FinalAmount)
	require.Equal(t, DefaultPriorityFee, express.FinalAmount-standard.FinalAmount)
	require.True(t, express.GoodsTotal.Equal(standard.GoodsTotal))
	require.True(t, express.ServiceFee.Equal(standard.ServiceFee))
	require.Equal(t, standard.TransportFee, express.TransportFee)
}

func TestComputeEmptyListStillChargesBaseFee(t *testing.T) {
	got := Compute(DefaultSchedule(), Input{Zone: PlaceholderZone, Priority: PriorityStandard})
	require.Equal(t, DefaultBaseFee, got.FinalAmount)

	got = Compute(DefaultSchedule(), Input{Budgets: []string{"0", "", "abc"}, Zone: "nowhere"})
	require.Equal(t, DefaultBaseFee, got.FinalAmount)
	require.Equal(t, Money(0), got.TransportFee)
}

func TestComputeRoundsUpOnlyAtTheEnd(t *testing.T) {
	// 0.1 + 0.2 would drift in float64; the service fee of 0.03 keeps the sum fractional.
	got := Compute(DefaultSchedule(), Input{Budgets: []string{"0.1", "0.2"}})
	require.True(t, got.GoodsTotal.Equal(decimal.RequireFromString("0.3")))
	require.True(t, got.ServiceFee.Equal(decimal.RequireFromString("0.03")))
	require.Equal(t, Money(10001), got.FinalAmount)
}

func TestGoodsTotalIsExactSum(t *testing.T) {
	budgets := []string{"1999.99", "0.01", "3000", " 500 "}
	require.True(t, GoodsTotal(budgets).Equal(decimal.NewFromInt(5500)))
}

func TestParseBudgetIgnoresGarbage(t *testing.T) {
	cases := map[string]string{
		"":       "0",
		"   ":    "0",
		"12,000": "0",
		"-50":    "0",
		"1e3":    "1000",
		"250.5":  "250.5",
	}
	for raw, want := range cases {
		require.True(t, ParseBudget(raw).Equal(decimal.RequireFromString(want)), "raw %q", raw)
	}
}

func TestNegativeBudgetsCountAsZero(t *testing.T) {
	// a negative row never discounts the other rows
	require.True(t, GoodsTotal([]string{"5000", "-2000"}).Equal(decimal.NewFromInt(5000)))
	require.True(t, GoodsTotal([]string{"-1"}).IsZero())
}

func TestFinalAmountNeverBelowBaseFee(t *testing.T) {
	s := DefaultSchedule()
	for _, zone := range s.Zones {
		for priority := range s.PriorityFees {
			got := Compute(s, Input{Budgets: []string{"1", "2"}, Zone: zone.Key, Priority: priority})
			require.GreaterOrEqual(t, got.FinalAmount, s.BaseFee)
		}
	}
}

func TestFeeNoteAndLabels(t *testing.T) {
	s := DefaultSchedule()
	require.Equal(t, "Base Fee: NGN 10,000, Service Rate: 10%", s.FeeNote())
	require.Equal(t, "Priority (+NGN 5,000)", s.PriorityLabel(PriorityExpress))
	require.Equal(t, "Standard", s.PriorityLabel(PriorityStandard))
	require.Equal(t, "1,234,567", FormatNaira(1234567))
	require.Equal(t, "999", FormatNaira(999))
}

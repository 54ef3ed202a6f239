// Package aggregate computes fleet-wide and per-channel figures from a market
// listing. Every function is pure and recomputes from its input.
package aggregate

import (
	"fmt"
	"math"
	"math/big"

	"github.com/brandon/adex-market-monitor/internal/bignum"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	// PercentScale keeps three decimals of percentage precision in integer
	// math: units = paid * PercentScale / deposit.
	PercentScale = 100000

	// CurrencyUnit is the display label of the 18-decimals deposit token.
	CurrencyUnit = "DAI"

	// Overflow is rendered for values outside the float64 range.
	Overflow = ">max"
)

// MaxPercentage is reported by PaidPercentage when the deposit is zero.
const MaxPercentage = math.MaxFloat64

// hundredthDivisor is 10^16: an 18-decimals amount divided by it is in
// hundredths of a token.
var hundredthDivisor = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

// TotalImpressions estimates impressions across all channels as the sum of
// floor(balancesSum / minPerImpression). Channels with a zero minPerImpression
// contribute nothing.
func TotalImpressions(channels []models.Channel) bignum.BigNumber {
	total := bignum.Zero()
	for _, ch := range channels {
		impressions, err := ch.Status.BalancesSum().FloorDiv(ch.Spec.MinPerImpression)
		if err != nil {
			continue
		}
		total = total.Add(impressions)
	}
	return total
}

// TotalPaid sums the approved balances of channels.
func TotalPaid(channels []models.Channel) bignum.BigNumber {
	total := bignum.Zero()
	for _, ch := range channels {
		total = total.Add(ch.Status.BalancesSum())
	}
	return total
}

// TotalDeposit sums the deposits of channels.
func TotalDeposit(channels []models.Channel) bignum.BigNumber {
	total := bignum.Zero()
	for _, ch := range channels {
		total = total.Add(ch.DepositAmount)
	}
	return total
}

// PaidPercentage is the share of the deposit already approved for payout, in
// percent. The ratio is taken on integers scaled by PercentScale and only the
// small scaled result goes through floating point. A zero deposit yields
// MaxPercentage.
func PaidPercentage(ch models.Channel) float64 {
	units, err := ch.Status.BalancesSum().Mul(PercentScale).FloorDiv(ch.DepositAmount)
	if err != nil {
		return MaxPercentage
	}
	f, ok := units.ToApproximateFloat()
	if !ok {
		f = PercentScale
	}
	return f / (PercentScale / 100)
}

// FormatPercentage renders a percentage with three decimals.
func FormatPercentage(p float64) string {
	if p == MaxPercentage {
		return Overflow + "%"
	}
	return fmt.Sprintf("%.3f%%", p)
}

// FormatCurrency renders an 18-decimals token amount with two decimals and
// the unit label. Digits below a hundredth are truncated.
func FormatCurrency(v bignum.BigNumber) string {
	hundredths := new(big.Int).Quo(v.Big(), hundredthDivisor)
	if f, _ := new(big.Float).SetInt(hundredths).Float64(); math.IsInf(f, 0) {
		return Overflow
	}
	return decimal.NewFromBigInt(hundredths, -2).StringFixed(2) + " " + CurrencyUnit
}

// FormatCount renders an integer with thousands separators.
func FormatCount(v bignum.BigNumber) string {
	return humanize.BigComma(v.Big())
}

// FormatUSD renders a USD estimate with two decimals.
func FormatUSD(usd float64) string {
	return fmt.Sprintf("$%.2f", usd)
}

// Summary bundles the header figures of the market view.
type Summary struct {
	TotalDeposit     bignum.BigNumber `json:"total_deposit"`
	TotalPaid        bignum.BigNumber `json:"total_paid"`
	TotalImpressions bignum.BigNumber `json:"total_impressions"`
	Channels         int              `json:"channels"`         // All channels in the listing
	TrackedChannels  int              `json:"tracked_channels"` // Channels in the target asset
}

// Summarize computes the header figures. Impressions are counted over all
// channels; deposit and paid totals over the asset-filtered ones.
func Summarize(all, filtered []models.Channel) Summary {
	return Summary{
		TotalDeposit:     TotalDeposit(filtered),
		TotalPaid:        TotalPaid(filtered),
		TotalImpressions: TotalImpressions(all),
		Channels:         len(all),
		TrackedChannels:  len(filtered),
	}
}

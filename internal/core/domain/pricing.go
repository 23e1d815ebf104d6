package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceTier prices every rental up to MaxVolume cubic metres.
type PriceTier struct {
	MaxVolume    decimal.Decimal
	MonthlyPrice decimal.Decimal
}

var (
	DefaultPriceTiers = []PriceTier{
		{MaxVolume: decimal.NewFromInt(3), MonthlyPrice: decimal.RequireFromString("49.00")},
		{MaxVolume: decimal.NewFromInt(6), MonthlyPrice: decimal.RequireFromString("89.00")},
		{MaxVolume: decimal.NewFromInt(10), MonthlyPrice: decimal.RequireFromString("139.00")},
		{MaxVolume: decimal.NewFromInt(20), MonthlyPrice: decimal.RequireFromString("249.00")},
		{MaxVolume: decimal.NewFromInt(40), MonthlyPrice: decimal.RequireFromString("449.00")},
	}

	// OverflowRate is charged per cubic metre above the largest tier.
	OverflowRate = decimal.RequireFromString("10.50")
)

// MonthlyPrice returns the monthly rent for volume cubic metres. tiers must
// be sorted by MaxVolume.
func MonthlyPrice(tiers []PriceTier, volume decimal.Decimal) (decimal.Decimal, error) {
	if !volume.IsPositive() {
		return decimal.Zero, fmt.Errorf("volume %s must be positive", volume)
	}
	if len(tiers) == 0 {
		return decimal.Zero, fmt.Errorf("no price tiers configured")
	}
	for _, tier := range tiers {
		if volume.LessThanOrEqual(tier.MaxVolume) {
			return tier.MonthlyPrice, nil
		}
	}
	last := tiers[len(tiers)-1]
	extra := volume.Sub(last.MaxVolume).Ceil()
	return last.MonthlyPrice.Add(extra.Mul(OverflowRate)), nil
}

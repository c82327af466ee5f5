package incentive

import "github.com/shopspring/decimal"

// Bonus thresholds and flat per-unit amounts. Thresholds are inclusive on the
// higher side: exactly 25% earns the Fold upper bonus.
var (
	foldAttachThreshold       = decimal.NewFromInt(25)
	foldBonusLow              = decimal.NewFromInt(400)
	foldBonusHigh             = decimal.NewFromInt(600)
	flagship25AttachThreshold = decimal.NewFromInt(15)
	flagship25BonusLow        = decimal.NewFromInt(300)
	flagship25BonusHigh       = decimal.NewFromInt(500)
)

// DeviceBonus returns the flat per-unit bonus. A nil attach percentage means
// no attach data and counts as 0%.
func DeviceBonus(class DeviceClass, attach *decimal.Decimal) decimal.Decimal {
	pct := decimal.Zero
	if attach != nil {
		pct = *attach
	}

	switch class {
	case DeviceFold:
		if pct.GreaterThanOrEqual(foldAttachThreshold) {
			return foldBonusHigh
		}
		return foldBonusLow
	case DeviceFlagship25:
		if pct.GreaterThanOrEqual(flagship25AttachThreshold) {
			return flagship25BonusHigh
		}
		return flagship25BonusLow
	default:
		return decimal.Zero
	}
}

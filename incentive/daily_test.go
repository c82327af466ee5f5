package incentive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/generic"
)

func dailyEntries() []DailyEntry {
	return []DailyEntry{
		{Date: generic.MustParseDate("2025-12-01"), IncentivePerUnit: dec("2000"), DeviceBonus: dec("400")},
		{Date: generic.MustParseDate("2025-12-03"), IncentivePerUnit: dec("2000"), DeviceBonus: dec("0")},
		{Date: generic.MustParseDate("2025-12-01"), IncentivePerUnit: dec("2000"), DeviceBonus: dec("0")},
	}
}

func TestDecompose_NewestFirst_GroupedByDay(t *testing.T) {
	// GIVEN: Three sales over two days at the base rate
	// WHEN: Decomposing
	rows := Decompose(dailyEntries(), RateBase)

	// THEN: One row per day, newest first
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-12-03", rows[0].Date.String())
	assert.Equal(t, "2025-12-01", rows[1].Date.String())

	assert.Equal(t, 2, rows[1].Units)
	assert.True(t, dec("4000").Equal(rows[1].BaseIncentive))
	assert.True(t, rows[1].VolumeIncentive.IsZero())
	assert.True(t, dec("400").Equal(rows[1].AttachmentBonus))
	assert.True(t, dec("4400").Equal(rows[1].Total))
}

func TestDecompose_KickerRate_AddsUpliftPerUnit(t *testing.T) {
	rows := Decompose(dailyEntries(), RateKicker)

	require.Len(t, rows, 2)
	assert.True(t, dec("400").Equal(rows[0].VolumeIncentive))
	assert.True(t, dec("2400").Equal(rows[0].Total))
	assert.True(t, dec("800").Equal(rows[1].VolumeIncentive))
	assert.True(t, dec("5200").Equal(rows[1].Total))
}

func TestDecompose_ZeroRate_KeepsOnlyDeviceBonus(t *testing.T) {
	// GIVEN: A store that missed its gate
	// WHEN: Decomposing at rate 0
	rows := Decompose(dailyEntries(), RateNone)

	// THEN: Base and volume are zeroed retroactively; bonuses remain
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, r.BaseIncentive.IsZero())
		assert.True(t, r.VolumeIncentive.IsZero())
	}
	assert.True(t, rows[0].Total.IsZero())
	assert.True(t, dec("400").Equal(rows[1].Total))
}

func TestDecompose_Empty(t *testing.T) {
	rows := Decompose(nil, RateBase)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestReconcile(t *testing.T) {
	rows := Decompose(dailyEntries(), RateKicker)

	balanced := Reconcile(rows, dec("7600"))
	assert.True(t, balanced.Balanced)
	assert.True(t, balanced.Difference.IsZero())

	off := Reconcile(rows, dec("7500"))
	assert.False(t, off.Balanced)
	assert.True(t, dec("100").Equal(off.Difference))
}

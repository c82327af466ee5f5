package incentive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceBonus_Thresholds(t *testing.T) {
	cases := []struct {
		class  DeviceClass
		attach string
		want   string
	}{
		{DeviceFold, "0", "400"},
		{DeviceFold, "24", "400"},
		{DeviceFold, "24.99", "400"},
		{DeviceFold, "25", "600"},
		{DeviceFold, "100", "600"},
		{DeviceFlagship25, "14", "300"},
		{DeviceFlagship25, "14.5", "300"},
		{DeviceFlagship25, "15", "500"},
		{DeviceFlagship25, "60", "500"},
		{DeviceOther, "0", "0"},
		{DeviceOther, "100", "0"},
	}

	for _, tc := range cases {
		pct := dec(tc.attach)
		got := DeviceBonus(tc.class, &pct)
		assert.True(t, dec(tc.want).Equal(got), "%s at %s%%: got %s want %s", tc.class, tc.attach, got, tc.want)
	}
}

func TestDeviceBonus_NilAttach_TreatedAsZero(t *testing.T) {
	// GIVEN: No attach data for the store
	// WHEN/THEN: Each class earns its lower bonus
	assert.True(t, dec("400").Equal(DeviceBonus(DeviceFold, nil)))
	assert.True(t, dec("300").Equal(DeviceBonus(DeviceFlagship25, nil)))
	assert.True(t, DeviceBonus(DeviceOther, nil).IsZero())
}

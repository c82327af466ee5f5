package incentive

import "strings"

// Classify maps category and model text to a bonus class. Fold wins over
// Flagship25 when both markers appear.
func Classify(category, modelName string) DeviceClass {
	text := strings.ToUpper(category + modelName)
	switch {
	case strings.Contains(text, "FOLD 7"), strings.Contains(text, "FOLD7"):
		return DeviceFold
	case strings.Contains(text, "S25"):
		return DeviceFlagship25
	default:
		return DeviceOther
	}
}

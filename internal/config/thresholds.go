package config

// Thresholds are the tunable values shared by the transform, metric and
// validation stages. It is a plain value: components copy it at construction.
type Thresholds struct {
	RollingWindow      int
	LowStockThreshold  float64
	MaxMissingFraction float64
	MinOrderValue      float64
	MaxOrderValue      float64
}

// DefaultThresholds returns the standard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RollingWindow:      7,
		LowStockThreshold:  10,
		MaxMissingFraction: 0.1,
		MinOrderValue:      0.01,
		MaxOrderValue:      10000,
	}
}

package generation

import "time"

const (
	DefaultMinInterval = 300 * time.Millisecond
	DefaultMaxInterval = 60 * time.Second
	DefaultMaxErrors   = 10
)

// BackoffInterval returns min * 2^errorCount, capped at max.
func BackoffInterval(min, max time.Duration, errorCount int) time.Duration {
	if errorCount < 0 {
		errorCount = 0
	}
	d := min
	for i := 0; i < errorCount; i++ {
		if d >= max || d > max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

package narration

import (
	"errors"
	"fmt"
	"math"
)

// DefaultCharsPerSecond is the average Vietnamese speaking rate used for
// narration budgets.
const DefaultCharsPerSecond = 15.0

// ErrInvalidDuration is returned when a budget is requested for a
// non-positive duration or speaking rate.
var ErrInvalidDuration = errors.New("invalid duration: must be positive")

// TargetLength returns the narration length in characters that fits a video
// of durationSec seconds: floor(durationSec * charsPerSecond).
func TargetLength(durationSec, charsPerSecond float64) (int, error) {
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return 0, fmt.Errorf("%w: duration %.2f", ErrInvalidDuration, durationSec)
	}
	if charsPerSecond <= 0 || math.IsNaN(charsPerSecond) || math.IsInf(charsPerSecond, 0) {
		return 0, fmt.Errorf("%w: chars per second %.2f", ErrInvalidDuration, charsPerSecond)
	}
	return int(math.Floor(durationSec * charsPerSecond)), nil
}

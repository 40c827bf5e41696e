package starburst

import (
	"fmt"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"gonum.org/v1/gonum/stat"
)

// Threshold computes the adaptive crossing threshold for one ray from the
// baseline formed by its first pixels samples:
//
//	CrossAbove: mean + factor*std
//	CrossBelow: mean - factor*std
//
// std is the population standard deviation. The baseline must leave at
// least one sample after it, so pixels must lie in [1, len(values)-1].
func Threshold(values []float64, pixels int, factor float64, crossing eyetrack.Crossing) (float64, error) {
	if pixels < 1 || pixels > len(values)-1 {
		return 0, fmt.Errorf("%w: threshold window of %d pixels needs at least %d samples, have %d",
			eyetrack.ErrConfiguration, pixels, pixels+1, len(values))
	}
	mean, std := stat.PopMeanStdDev(values[:pixels], nil)
	switch crossing {
	case eyetrack.CrossAbove:
		return mean + factor*std, nil
	case eyetrack.CrossBelow:
		return mean - factor*std, nil
	}
	return 0, fmt.Errorf("%w: unknown crossing direction %d", eyetrack.ErrConfiguration, crossing)
}

// crossed reports whether v lies past threshold in the given direction.
func crossed(v, threshold float64, crossing eyetrack.Crossing) bool {
	if crossing == eyetrack.CrossBelow {
		return v < threshold
	}
	return v > threshold
}

package mediamodule

import (
	"fmt"
	"time"

	"github.com/mantonx/shoebox/internal/utils"
)

// significantChange is the threshold beyond which a new effective
// datetime triggers regeneration of the canonical filename.
const significantChange = time.Hour

// SignificantChange reports whether the effective datetime moved far
// enough to warrant a rename cascade. Gaining or losing the datetime
// entirely always counts.
func SignificantChange(previous, current *time.Time) bool {
	switch {
	case previous == nil && current == nil:
		return false
	case previous == nil || current == nil:
		return true
	default:
		diff := current.Sub(*previous)
		if diff < 0 {
			diff = -diff
		}
		return diff > significantChange
	}
}

// TimestampedName builds the canonical filename used after a
// significant datetime change: the effective datetime followed by the
// originally submitted name.
func TimestampedName(t time.Time, originalName string) string {
	return fmt.Sprintf("%s-%s", t.Format("20060102_150405"), utils.SanitizeFilename(originalName))
}

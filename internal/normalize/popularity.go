package normalize

import (
	"fmt"
	"strings"
)

// Thresholds controls busy/quiet window classification of an hour-indexed
// occupancy curve.
type Thresholds struct {
	Busy  int // hours strictly above are busy
	Quiet int // hours strictly below are quiet
}

// DefaultThresholds returns the classification defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Busy: 60, Quiet: 30}
}

// Windows classifies each day's occupancy curve into a busy window and a
// quiet window. Contiguous qualifying hours collapse into a single
// "start:00-end:00" string per day: the longest run wins, earliest on a
// tie. A day with no qualifying hours contributes no entry, and a side
// with no entries at all is nil.
func Windows(curves map[string][]int, th Thresholds) (busy, quiet map[string]string) {
	busy = make(map[string]string)
	quiet = make(map[string]string)

	for day, curve := range curves {
		day = strings.ToLower(strings.TrimSpace(day))
		if day == "" || len(curve) == 0 {
			continue
		}
		if w := bestRun(curve, func(v int) bool { return v > th.Busy }); w != "" {
			busy[day] = w
		}
		if w := bestRun(curve, func(v int) bool { return v < th.Quiet }); w != "" {
			quiet[day] = w
		}
	}

	if len(busy) == 0 {
		busy = nil
	}
	if len(quiet) == 0 {
		quiet = nil
	}
	return busy, quiet
}

// bestRun finds the longest contiguous run of qualifying hour indices and
// formats it as "start:00-end:00" with an exclusive end hour.
func bestRun(curve []int, qualifies func(int) bool) string {
	bestStart, bestLen := -1, 0
	runStart, runLen := -1, 0

	for i, v := range curve {
		if qualifies(v) {
			if runLen == 0 {
				runStart = i
			}
			runLen++
			if runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
		} else {
			runLen = 0
		}
	}

	if bestLen == 0 {
		return ""
	}
	return fmt.Sprintf("%d:00-%d:00", bestStart, bestStart+bestLen)
}

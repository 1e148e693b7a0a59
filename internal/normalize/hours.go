package normalize

import (
	"strings"

	"github.com/venuedex/enrich-cli/internal/model"
)

// Hours converts either hours shape (day-keyed map or {day, hours} list)
// into a mapping from lowercase day name to an hours string. If no day
// yields a value the result is nil, never an empty map.
func Hours(h model.HoursPayload) map[string]string {
	out := make(map[string]string)

	for day, hours := range h.ByDay {
		putHours(out, day, hours)
	}
	for _, dh := range h.List {
		putHours(out, dh.Day, dh.Hours)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func putHours(out map[string]string, day, hours string) {
	day = strings.ToLower(strings.TrimSpace(day))
	hours = strings.TrimSpace(hours)
	if day == "" || hours == "" {
		return
	}
	out[day] = hours
}

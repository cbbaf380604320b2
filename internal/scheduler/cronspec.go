package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// ParseHHMM validates an "HH:MM" daily-schedule fragment. It is implemented
// on top of robfig/cron's standard parser: "09:30" is checked as the cron
// minute/hour fields "30 09"; input without a colon is rejected before that
// check. This package does not adopt cron's calendar engine as the execution
// loop: cron has no notion of a persisted lease or next_run_at, which is
// the core coordination primitive here (see DESIGN.md).
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("scheduler: invalid HH:MM %q", s)
	}

	// cron.ParseStandard expects "minute hour dom month dow"; borrowing its
	// validation means an operator typo like "9:99" is rejected the same
	// way a malformed cron fragment would be, reusing the library instead
	// of re-deriving range checks by hand.
	if _, err := cron.ParseStandard(fmt.Sprintf("%s * * *", swapHHMM(parts))); err != nil {
		return 0, 0, fmt.Errorf("scheduler: invalid HH:MM %q: %w", s, err)
	}

	return parseHHMM(s)
}

func swapHHMM(parts []string) string {
	return parts[1] + " " + parts[0]
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("scheduler: invalid HH:MM %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("scheduler: invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("scheduler: invalid minute in %q", s)
	}
	return hour, minute, nil
}

package tools

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
)

const defaultDurationMin = 60

// durationHints maps description keywords to expected durations in
// minutes. Matched case-insensitively as substrings.
var durationHints = []struct {
	keyword string
	minutes int
}{
	{"cabelo", 45},
	{"cabeleireiro", 45},
	{"haircut", 45},
	{"barbeiro", 45},
	{"reunião", 90},
	{"reuniao", 90},
	{"meeting", 90},
	{"consulta", 60},
	{"dentista", 60},
	{"almoço", 60},
	{"almoco", 60},
	{"lunch", 60},
	{"call", 30},
	{"ligação", 30},
	{"ligacao", 30},
}

// estimateDuration guesses how long a task takes from its description.
func estimateDuration(description string) int {
	lower := strings.ToLower(description)
	for _, hint := range durationHints {
		if strings.Contains(lower, hint.keyword) {
			return hint.minutes
		}
	}
	return defaultDurationMin
}

// nextFreeSlot finds the earliest start at or after `from` where an
// appointment of the given duration fits around the calendar's busy
// periods. Without a calendar the slot is simply `from` rounded up.
func nextFreeSlot(ctx context.Context, cal calendar.Service, from time.Time, duration time.Duration) time.Time {
	candidate := roundUp(from, 15*time.Minute)
	if cal == nil {
		return candidate
	}

	busy, err := cal.FreeBusy(ctx, candidate, candidate.Add(14*24*time.Hour))
	if err != nil {
		logging.Warn("tools", "freebusy lookup failed, scheduling without it: %v", err)
		return candidate
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	for _, b := range busy {
		if !candidate.Add(duration).After(b.Start) {
			break
		}
		if b.End.After(candidate) {
			candidate = roundUp(b.End, 15*time.Minute)
		}
	}
	return candidate
}

func roundUp(t time.Time, step time.Duration) time.Time {
	rounded := t.Truncate(step)
	if rounded.Before(t) {
		rounded = rounded.Add(step)
	}
	return rounded
}

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
)

func TestEstimateDuration(t *testing.T) {
	cases := []struct {
		desc string
		want int
	}{
		{"Corte de cabelo amanhã", 45},
		{"Cortar o cabelo", 45},
		{"Reunião com o time", 90},
		{"Meeting with supplier", 90},
		{"Consulta no dentista", 60},
		{"Comprar leite", 60},
	}
	for _, tc := range cases {
		if got := estimateDuration(tc.desc); got != tc.want {
			t.Errorf("estimateDuration(%q) = %d, want %d", tc.desc, got, tc.want)
		}
	}
}

func TestNextFreeSlotWithoutCalendar(t *testing.T) {
	from := time.Date(2026, 8, 28, 9, 3, 0, 0, time.UTC)
	got := nextFreeSlot(context.Background(), nil, from, time.Hour)
	want := time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNextFreeSlotSkipsBusyPeriods(t *testing.T) {
	cal := newFakeCalendar()
	cal.busy = []calendar.BusyPeriod{
		{
			Start: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		},
		{
			Start: time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC),
			End:   time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC),
		},
	}

	from := time.Date(2026, 8, 28, 8, 45, 0, 0, time.UTC)

	// A 10 minute slot fits before the first busy period.
	got := nextFreeSlot(context.Background(), cal, from, 10*time.Minute)
	if !got.Equal(from) {
		t.Errorf("short slot: got %s, want %s", got, from)
	}

	// A 45 minute slot fits neither before 9:00 nor in the 30 minute
	// gap, so it lands after the second busy period.
	got = nextFreeSlot(context.Background(), cal, from, 45*time.Minute)
	want := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("long slot: got %s, want %s", got, want)
	}

	// A 30 minute slot fits exactly between the busy periods.
	got = nextFreeSlot(context.Background(), cal, from, 30*time.Minute)
	want = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("exact slot: got %s, want %s", got, want)
	}
}

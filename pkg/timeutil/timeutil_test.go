package timeutil

import (
	"testing"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

func TestBucketStart(t *testing.T) {
	// Thursday 2025-01-16 15:04 UTC
	ts := time.Date(2025, 1, 16, 15, 4, 0, 0, time.UTC)

	cases := []struct {
		unit enums.TimeUnit
		want time.Time
	}{
		{enums.TimeUnitDay, time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{enums.TimeUnitWeek, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)},
		{enums.TimeUnitMonth, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := BucketStart(ts, tc.unit); !got.Equal(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.unit, tc.want, got)
		}
	}
}

func TestBucketStartWeekOnSunday(t *testing.T) {
	sunday := time.Date(2025, 1, 19, 23, 0, 0, 0, time.UTC)
	want := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	if got := BucketStart(sunday, enums.TimeUnitWeek); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBucketStartNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2025, 3, 1, 2, 0, 0, 0, loc) // 2025-02-28 20:30 UTC
	want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := BucketStart(ts, enums.TimeUnitMonth); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLabel(t *testing.T) {
	if got := Label(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), enums.TimeUnitWeek); got != "2025-W02" {
		t.Fatalf("unexpected week label %s", got)
	}
	if got := Label(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), enums.TimeUnitMonth); got != "2025-11" {
		t.Fatalf("unexpected month label %s", got)
	}
	if got := Label(time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), enums.TimeUnitDay); got != "2025-11-03" {
		t.Fatalf("unexpected day label %s", got)
	}
}

func TestBuckets(t *testing.T) {
	from := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	got := Buckets(from, to, enums.TimeUnitMonth)
	if len(got) != 2 {
		t.Fatalf("expected 2 whole monthly buckets, got %d", len(got))
	}
	if !got[0].Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) || !got[1].Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected buckets %v", got)
	}
	// a Wednesday to Tuesday range holds exactly one whole ISO week
	weeks := Buckets(time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC), enums.TimeUnitWeek)
	if len(weeks) != 1 || !weeks[0].Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected weekly buckets %v", weeks)
	}
	if Buckets(from, from.Add(time.Hour), enums.TimeUnitDay) != nil {
		t.Fatal("expected no bucket for a range shorter than a day")
	}
	if Buckets(to, from, enums.TimeUnitDay) != nil {
		t.Fatal("expected nil for an inverted range")
	}
}

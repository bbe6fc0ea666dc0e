package scheduler

import (
	"strings"
	"testing"
	"time"
)

func TestRecurrenceValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		r       Recurrence
		wantErr string
	}{
		{"daily at noon", Recurrence{Period: 24 * time.Hour, Position: 12 * time.Hour}, ""},
		{"with jitter", Recurrence{Period: time.Hour, Position: 5 * time.Minute, Jitter: 2 * time.Minute}, ""},
		{"zero position", Recurrence{Period: time.Hour}, ""},
		{"cron", Recurrence{Cron: "30 3 * * *"}, ""},
		{"cron descriptor", Recurrence{Cron: "@hourly"}, ""},
		{"zero period", Recurrence{}, "period must be positive"},
		{"negative period", Recurrence{Period: -time.Hour}, "period must be positive"},
		{"position equals period", Recurrence{Period: time.Hour, Position: time.Hour}, "out of range"},
		{"position beyond period", Recurrence{Period: time.Hour, Position: 2 * time.Hour}, "out of range"},
		{"negative position", Recurrence{Period: time.Hour, Position: -time.Minute}, "out of range"},
		{"negative jitter", Recurrence{Period: time.Hour, Jitter: -time.Second}, "jitter must be >= 0"},
		{"bad cron", Recurrence{Cron: "not a cron"}, "invalid cron expression"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.r.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecurrenceNextDeterministic(t *testing.T) {
	t.Parallel()
	// with jitter 0 the result depends only on now
	r := Recurrence{Period: time.Hour, Position: 10 * time.Minute}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 30, 14, 25, 0, 0, time.UTC)
	a, b := r.Next(now), r.Next(now)
	if !a.Equal(b) {
		t.Fatalf("Next not deterministic with zero jitter: %v vs %v", a, b)
	}
}

func TestRecurrenceNextAlignment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		period   time.Duration
		position time.Duration
		now      time.Time
		want     time.Time
	}{
		{
			"before position in current window",
			time.Hour, 10 * time.Minute,
			time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC),
			time.Date(2026, 8, 30, 14, 10, 0, 0, time.UTC),
		},
		{
			"past position rolls to next window",
			time.Hour, 10 * time.Minute,
			time.Date(2026, 8, 30, 14, 25, 0, 0, time.UTC),
			time.Date(2026, 8, 30, 15, 10, 0, 0, time.UTC),
		},
		{
			"exactly at position is not after now",
			time.Hour, 10 * time.Minute,
			time.Date(2026, 8, 30, 14, 10, 0, 0, time.UTC),
			time.Date(2026, 8, 30, 15, 10, 0, 0, time.UTC),
		},
		{
			"daily at midnight from epoch",
			24 * time.Hour, 0,
			time.Unix(0, 0).UTC(),
			time.Unix(86400, 0).UTC(),
		},
		{
			"daily at noon from epoch",
			24 * time.Hour, 12 * time.Hour,
			time.Unix(0, 0).UTC(),
			time.Unix(43200, 0).UTC(),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Recurrence{Period: tt.period, Position: tt.position}
			if err := r.Validate(); err != nil {
				t.Fatal(err)
			}
			got := r.Next(tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestRecurrenceNextAlwaysFuture(t *testing.T) {
	t.Parallel()
	// jitter larger than position can place the raw target behind now;
	// Next must still land strictly in the future and within bounds
	r := Recurrence{Period: time.Hour, Position: time.Minute, Jitter: 20 * time.Minute}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		now := base.Add(time.Duration(i) * 7 * time.Minute)
		got := r.Next(now)
		if !got.After(now) {
			t.Fatalf("Next(%v) = %v is not in the future", now, got)
		}
		if got.Sub(now) > r.Period+r.Jitter {
			t.Fatalf("Next(%v) = %v is more than a period+jitter away", now, got)
		}
	}
}

func TestRecurrenceNextJitterBounds(t *testing.T) {
	t.Parallel()
	r := Recurrence{Period: time.Hour, Position: 30 * time.Minute, Jitter: 5 * time.Minute}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	lo := now.Add(25 * time.Minute)
	hi := now.Add(35 * time.Minute)
	for i := 0; i < 200; i++ {
		got := r.Next(now)
		if got.Before(lo) || got.After(hi) {
			t.Fatalf("Next landed at %v, outside [%v, %v]", got, lo, hi)
		}
	}
}

func TestRecurrenceNextCron(t *testing.T) {
	t.Parallel()
	r := Recurrence{Cron: "30 3 * * *"}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 31, 3, 30, 0, 0, time.UTC)
	if got := r.Next(now); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestRecurrenceString(t *testing.T) {
	t.Parallel()
	r := Recurrence{Period: time.Hour, Position: 5 * time.Minute, Jitter: time.Minute}
	if got := r.String(); !strings.Contains(got, "1h") {
		t.Fatalf("String() = %q", got)
	}
	c := Recurrence{Cron: "@daily"}
	if got := c.String(); got != "cron:@daily" {
		t.Fatalf("String() = %q, want cron:@daily", got)
	}
}

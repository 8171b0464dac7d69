package core

import "testing"

func TestComputeCycles(t *testing.T) {
	cases := []struct {
		name                 string
		closing, due         int
		today                Date
		curStart, curEnd     string
		curDue               string
		closedStart, closedE string
		closedDue            string
		daysToDue            int
	}{
		{
			name: "after closing", closing: 5, due: 12, today: NewDate(2025, 3, 20),
			curStart: "2025-03-06", curEnd: "2025-04-05", curDue: "2025-04-12",
			closedStart: "2025-02-06", closedE: "2025-03-05", closedDue: "2025-03-12",
			daysToDue: 23,
		},
		{
			name: "on closing day", closing: 5, due: 12, today: NewDate(2025, 3, 5),
			curStart: "2025-02-06", curEnd: "2025-03-05", curDue: "2025-03-12",
			closedStart: "2025-01-06", closedE: "2025-02-05", closedDue: "2025-02-12",
			daysToDue: 7,
		},
		{
			name: "due rolls to next month", closing: 25, due: 5, today: NewDate(2025, 1, 10),
			curStart: "2024-12-26", curEnd: "2025-01-25", curDue: "2025-02-05",
			closedStart: "2024-11-26", closedE: "2024-12-25", closedDue: "2025-01-05",
			daysToDue: 26,
		},
		{
			name: "closing clamped in february", closing: 31, due: 10, today: NewDate(2025, 3, 1),
			curStart: "2025-03-01", curEnd: "2025-03-31", curDue: "2025-04-10",
			closedStart: "2025-02-01", closedE: "2025-02-28", closedDue: "2025-03-10",
			daysToDue: 40,
		},
		{
			name: "year rollover", closing: 10, due: 20, today: NewDate(2025, 12, 15),
			curStart: "2025-12-11", curEnd: "2026-01-10", curDue: "2026-01-20",
			closedStart: "2025-11-11", closedE: "2025-12-10", closedDue: "2025-12-20",
			daysToDue: 36,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeCycles(tc.closing, tc.due, tc.today)
			check := func(label string, d Date, want string) {
				t.Helper()
				if d.String() != want {
					t.Errorf("%s = %s, want %s", label, d, want)
				}
			}
			check("current.start", got.Current.Start, tc.curStart)
			check("current.end", got.Current.End, tc.curEnd)
			check("current.due", got.Current.Due, tc.curDue)
			check("closed.start", got.Closed.Start, tc.closedStart)
			check("closed.end", got.Closed.End, tc.closedE)
			check("closed.due", got.Closed.Due, tc.closedDue)
			if got.DaysToDue != tc.daysToDue {
				t.Errorf("daysToDue = %d, want %d", got.DaysToDue, tc.daysToDue)
			}
			if !got.Current.Contains(tc.today) {
				t.Errorf("current cycle %s..%s does not contain today", got.Current.Start, got.Current.End)
			}
		})
	}
}

func TestCyclesNeverOverlap(t *testing.T) {
	start := NewDate(2024, 1, 1)
	for closing := 1; closing <= 31; closing++ {
		for _, due := range []int{1, 10, closing, 28, 31} {
			for i := 0; i < 400; i += 7 {
				today := start.AddDays(i)
				c := ComputeCycles(closing, due, today)
				if !c.Closed.End.AddDays(1).Equal(c.Current.Start.Time) {
					t.Fatalf("closing=%d due=%d today=%s: closed ends %s, current starts %s",
						closing, due, today, c.Closed.End, c.Current.Start)
				}
				for _, cy := range []Cycle{c.Current, c.Closed} {
					if cy.Due.Before(cy.End.Time) {
						t.Fatalf("closing=%d due=%d today=%s: due %s before end %s",
							closing, due, today, cy.Due, cy.End)
					}
					if cy.End.Before(cy.Start.Time) {
						t.Fatalf("closing=%d today=%s: empty cycle %s..%s", closing, today, cy.Start, cy.End)
					}
				}
				if !c.Current.Contains(today) {
					t.Fatalf("closing=%d today=%s not in current %s..%s", closing, today, c.Current.Start, c.Current.End)
				}
			}
		}
	}
}

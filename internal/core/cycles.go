package core

// Cycle is one credit-card billing period, bounds inclusive.
type Cycle struct {
	Start Date
	End   Date
	Due   Date
}

// CardCycles holds the open cycle containing today and the one before it.
type CardCycles struct {
	Current   Cycle
	Closed    Cycle
	DaysToDue int
}

// ComputeCycles derives the current and closed billing cycles for a card
// closing on closingDay with payment due on dueDay. Both days are clamped to
// the length of the month they land in.
func ComputeCycles(closingDay, dueDay int, today Date) CardCycles {
	m := today.MonthOf()
	thisClosing := ClampedDate(m.Year, m.Month, closingDay)

	// The cycle ending on the closing date of endMonth.
	var endMonth Month
	if today.Time.After(thisClosing.Time) {
		endMonth = m.Add(1)
	} else {
		endMonth = m
	}

	current := cycleEndingIn(endMonth, closingDay, dueDay)
	closed := cycleEndingIn(endMonth.Add(-1), closingDay, dueDay)

	return CardCycles{
		Current:   current,
		Closed:    closed,
		DaysToDue: today.DaysUntil(current.Due),
	}
}

func cycleEndingIn(end Month, closingDay, dueDay int) Cycle {
	prev := end.Add(-1)
	start := ClampedDate(prev.Year, prev.Month, closingDay).AddDays(1)
	last := ClampedDate(end.Year, end.Month, closingDay)
	return Cycle{Start: start, End: last, Due: dueDate(end, closingDay, dueDay)}
}

func dueDate(end Month, closingDay, dueDay int) Date {
	if dueDay < closingDay {
		next := end.Add(1)
		return ClampedDate(next.Year, next.Month, dueDay)
	}
	return ClampedDate(end.Year, end.Month, dueDay)
}

// Contains reports whether d lies within the cycle bounds.
func (c Cycle) Contains(d Date) bool {
	return !d.Before(c.Start.Time) && !d.After(c.End.Time)
}

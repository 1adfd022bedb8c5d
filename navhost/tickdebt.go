package navhost

import "math"

// TickDebt turns variable frame times into a whole number of fixed steps.
// Time that does not fill a step carries over to the next frame.
type TickDebt struct {
	Interval float64
	Debt     float64
	Ticks    int
}

// Reset forgets all accumulated time and steps.
func (d *TickDebt) Reset() {
	d.Debt = 0
	d.Ticks = 0
}

// Add accrues dt seconds and returns the number of whole steps owed.
func (d *TickDebt) Add(dt float64) int {
	if d.Interval <= 0 || dt <= 0 {
		return d.Ticks
	}
	d.Debt += dt
	n := math.Floor(d.Debt / d.Interval)
	d.Ticks += int(n)
	d.Debt -= n * d.Interval
	return d.Ticks
}

// Take removes up to limit owed steps and returns how many were taken. Steps
// beyond limit are dropped so a long stall cannot snowball. A limit of zero or
// less takes everything.
func (d *TickDebt) Take(limit int) int {
	n := d.Ticks
	if limit > 0 && n > limit {
		n = limit
	}
	d.Ticks = 0
	return n
}

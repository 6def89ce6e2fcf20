package scoring

import "cmp"

// The classification is built in three sort passes over the same rows,
// so the orderings live here as named comparators instead of inline
// closures.

// byTotalTime orders drivers fastest rally total first.
func byTotalTime(a, b DriverStanding) int {
	return cmp.Compare(a.TotalTime, b.TotalTime)
}

// byPowerTime orders drivers fastest power-stage time first.
func byPowerTime(a, b DriverStanding) int {
	return cmp.Compare(a.PowerTime, b.PowerTime)
}

// byScoreThenTotalTime orders drivers highest score first; equal scores
// go to the faster rally total.
func byScoreThenTotalTime(a, b DriverStanding) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return byTotalTime(a, b)
}

// byTeamScore orders teams highest score first. Ties keep encounter
// order, which a stable sort preserves.
func byTeamScore(a, b TeamStanding) int {
	return cmp.Compare(b.Score, a.Score)
}

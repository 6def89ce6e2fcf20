package ingest

import (
	"fmt"
	"sort"

	"rally-dashboard/fetch"
	"rally-dashboard/racenet"
)

// DriverTime is the per-driver delta view of one event: one entry per
// completed stage, stage 1 first.
type DriverTime struct {
	Nickname string
	Car      string
	Assists  bool
	// Deltas holds per-stage times in seconds. The upstream leaderboard
	// reports cumulative totals; Deltas[0] is the stage 1 time and
	// Deltas[k] is cumulative(k+1) minus cumulative(k).
	Deltas []float64
}

// DeriveDriverTimes reduces an assembled event to per-driver stage deltas.
// The car name is taken from the driver's latest stage entry and the
// assists flag from the assists-enabled leaderboard.
func DeriveDriverTimes(ev *fetch.EventResult) ([]DriverTime, error) {
	cumulative := make(map[string][]float64)
	cars := make(map[string]string)

	for _, stage := range ev.Stages {
		for _, entry := range stage.Entries {
			seconds, err := racenet.ParseTime(entry.Time)
			if err != nil {
				return nil, fmt.Errorf("stage %d entry %q: %w", stage.Stage, entry.Name, err)
			}
			cumulative[entry.Name] = append(cumulative[entry.Name], seconds)
			cars[entry.Name] = entry.VehicleName
		}
	}

	times := make([]DriverTime, 0, len(cumulative))
	for name, totals := range cumulative {
		deltas := make([]float64, len(totals))
		for i, total := range totals {
			if i == 0 {
				deltas[i] = racenet.RoundMillis(total)
				continue
			}
			deltas[i] = racenet.RoundMillis(total - totals[i-1])
		}
		_, assists := ev.AssistedNames[name]
		times = append(times, DriverTime{
			Nickname: name,
			Car:      cars[name],
			Assists:  assists,
			Deltas:   deltas,
		})
	}

	// Map iteration order is random; keep the output stable.
	sort.Slice(times, func(i, j int) bool { return times[i].Nickname < times[j].Nickname })
	return times, nil
}

package scoring

import (
	"maps"
	"slices"
)

// Eligibility checks applied to each finisher row, in the order the
// engine runs them. Each returns row-local facts; the engine decides
// exclusion.

// classForCar returns the class whose allowed-car list contains car.
// Classes are scanned in sorted id order so the answer is stable even
// if a car is listed under more than one class.
func classForCar(car string, season seasonConfig) (string, bool) {
	for _, classID := range slices.Sorted(maps.Keys(season.Classes)) {
		if slices.Contains(season.Classes[classID].Cars, car) {
			return classID, true
		}
	}
	return "", false
}

// assistsAllowed reports whether the row's assists usage is legal in the
// class. A class without an assists policy allows everything.
func assistsAllowed(assists bool, classID string, season seasonConfig) bool {
	policy := season.Classes[classID].Assists
	if policy == nil {
		return true
	}
	return !(assists && !*policy)
}

func isDisqualified(driver string, rally rallyConfig) bool {
	for _, p := range rally.Penalties {
		if p.Driver == driver && p.DQ {
			return true
		}
	}
	return false
}

func hasRestarted(driver string, rally rallyConfig) bool {
	_, ok := rally.Restarters[driver]
	return ok
}

// teamForDriver returns the id and roster of the team that lists driver
// in the given class.
func teamForDriver(driver, classID string, rally rallyConfig) (string, teamConfig, bool) {
	teams := rally.Teams[classID]
	for _, teamID := range slices.Sorted(maps.Keys(teams)) {
		if slices.Contains(teams[teamID].Drivers, driver) {
			return teamID, teams[teamID], true
		}
	}
	return "", teamConfig{}, false
}

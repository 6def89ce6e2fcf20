package scoring

import (
	"slices"
	"testing"
)

func TestByScoreThenTotalTime(t *testing.T) {
	drivers := []DriverStanding{
		{Name: "slow-high", TotalTime: 400, Score: 20},
		{Name: "fast-high", TotalTime: 300, Score: 20},
		{Name: "low", TotalTime: 100, Score: 5},
	}
	slices.SortStableFunc(drivers, byScoreThenTotalTime)

	want := []string{"fast-high", "slow-high", "low"}
	for i, name := range want {
		if drivers[i].Name != name {
			t.Errorf("position %d = %q, want %q", i, drivers[i].Name, name)
		}
	}
}

func TestByTeamScoreKeepsEncounterOrderOnTies(t *testing.T) {
	teams := []TeamStanding{
		{ID: "first-seen", Score: 10},
		{ID: "second-seen", Score: 10},
		{ID: "top", Score: 30},
	}
	slices.SortStableFunc(teams, byTeamScore)

	want := []string{"top", "first-seen", "second-seen"}
	for i, id := range want {
		if teams[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, teams[i].ID, id)
		}
	}
}

func TestByPowerTime(t *testing.T) {
	drivers := []DriverStanding{
		{Name: "b", PowerTime: 120},
		{Name: "a", PowerTime: 110},
	}
	slices.SortStableFunc(drivers, byPowerTime)
	if drivers[0].Name != "a" {
		t.Errorf("fastest power time should sort first, got %q", drivers[0].Name)
	}
}

package scoring

// DriverStanding is one driver's line in a class classification.
type DriverStanding struct {
	Name      string  `json:"name"`
	Team      string  `json:"team"`
	TotalTime float64 `json:"totalTime"`
	PowerTime float64 `json:"powerTime"`
	Score     int     `json:"score"`
}

// TeamStanding is one team's line in a class classification.
type TeamStanding struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// ClassStandings is the full classification of one class, rebuilt from
// scratch on every scoring run.
type ClassStandings struct {
	Drivers []DriverStanding `json:"drivers"`
	Teams   []TeamStanding   `json:"teams"`
}

// classConfig is a season's definition of one competitive class. A nil
// Assists means the class has no assists policy.
type classConfig struct {
	Cars    []string `json:"cars"`
	Assists *bool    `json:"assists,omitempty"`
}

type teamConfig struct {
	Car     string   `json:"car"`
	Drivers []string `json:"drivers"`
	Private bool     `json:"private"`
}

type penalty struct {
	Driver  string `json:"driver"`
	DQ      bool   `json:"dq"`
	Message string `json:"message"`
}

type seasonConfig struct {
	Classes map[string]classConfig
}

type rallyConfig struct {
	SeasonID   string
	StageCount int
	Restarters map[string]struct{}
	Penalties  []penalty
	// Teams is keyed by class, then team id.
	Teams map[string]map[string]teamConfig
}

// raceRow is the scoring view of one persisted ledger row.
type raceRow struct {
	Nickname string
	Stage    int
	Time     float64
	Car      string
	Assists  bool
}

package racenet

import "time"

// AssistFilter selects which leaderboard variant a page request targets.
// The upstream endpoint treats "any" as unfiltered; "enabled" returns only
// drivers with driving aids switched on.
type AssistFilter string

const (
	AssistsAny     AssistFilter = "any"
	AssistsEnabled AssistFilter = "enabled"
)

// SummaryStage is the pseudo stage number for the event summary page.
const SummaryStage = 0

// Entry is one driver's row within a stage leaderboard page.
type Entry struct {
	Position    int    `json:"Position"`
	PlayerID    int64  `json:"PlayerId"`
	Name        string `json:"Name"`
	VehicleName string `json:"VehicleName"`
	Time        string `json:"Time"`
	DiffFirst   string `json:"DiffFirst"`
	TierID      int    `json:"TierID"`
}

// Response is the decoded upstream payload for a single page request.
// TotalStages is populated only on stage 0 responses; Pages and
// LeaderboardTotal only on stage responses.
type Response struct {
	EventName        string  `json:"EventName"`
	TotalStages      int     `json:"TotalStages"`
	LocationName     string  `json:"LocationName"`
	StageName        string  `json:"StageName"`
	Page             int     `json:"Page"`
	Pages            int     `json:"Pages"`
	LeaderboardTotal int     `json:"LeaderboardTotal"`
	Entries          []Entry `json:"Entries"`
}

// Envelope is a time-stamped response container for one
// (event, stage, page) request.
type Envelope struct {
	EventID      int64
	Stage        int
	Page         int
	ResponseTime time.Duration
	Response     Response
}

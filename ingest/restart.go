package ingest

import (
	"fmt"
	"math"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// DetectRestarts compares freshly derived stage deltas against the race
// ledger and returns the nicknames whose history the new data contradicts.
// The upstream service never reports restarts; a re-driven stage simply
// shows a new time while the old one stays committed in the ledger, so a
// recorded time with no exact counterpart in the new data is the only
// signal. A driver with no prior rows is never flagged.
func DetectRestarts(app core.App, rallyID string, times []DriverTime) (map[string]struct{}, error) {
	flagged := make(map[string]struct{})

	for _, dt := range times {
		rows, err := app.FindRecordsByFilter("races",
			"rally = {:rally} && nickname = {:nickname}", "", 0, 0,
			dbx.Params{"rally": rallyID, "nickname": dt.Nickname})
		if err != nil {
			return nil, fmt.Errorf("load ledger rows for %s: %w", dt.Nickname, err)
		}
		if len(rows) == 0 {
			continue
		}

		for _, row := range rows {
			stage := row.GetInt("stage")
			recorded := row.GetFloat("timeSeconds")
			if stage < 1 || stage > len(dt.Deltas) || math.Abs(dt.Deltas[stage-1]-recorded) >= timeEpsilon {
				flagged[dt.Nickname] = struct{}{}
				break
			}
		}
	}

	return flagged, nil
}

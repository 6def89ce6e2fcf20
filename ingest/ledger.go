package ingest

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// timeEpsilon bounds float comparisons on stage times. All times are
// rounded to millisecond precision before they reach the ledger, so half
// a millisecond separates "same time" from "different time".
const timeEpsilon = 0.0005

// Ledger is the append-only record of per-driver, per-stage times for a
// rally. Rows are corrected, never deleted.
type Ledger struct {
	App core.App
}

func NewLedger(app core.App) *Ledger { return &Ledger{App: app} }

// Insert records one stage time. An existing row with the same
// (nickname, stage, time, car) makes this a no-op, except that a
// mismatched assists flag is corrected in place. Returns true only when
// a new row was appended, so callers can gate rescoring on it.
func (l *Ledger) Insert(rallyID, nickname string, stage int, seconds float64, car string, assists bool) (bool, error) {
	rows, err := l.App.FindRecordsByFilter("races",
		"rally = {:rally} && nickname = {:nickname} && stage = {:stage}", "", 0, 0,
		dbx.Params{"rally": rallyID, "nickname": nickname, "stage": stage})
	if err != nil {
		return false, fmt.Errorf("scan races for %s stage %d: %w", nickname, stage, err)
	}

	for _, row := range rows {
		if math.Abs(row.GetFloat("timeSeconds")-seconds) >= timeEpsilon || row.GetString("car") != car {
			continue
		}
		if row.GetBool("assists") != assists {
			row.Set("assists", assists)
			if err := l.App.Save(row); err != nil {
				return false, fmt.Errorf("correct assists flag on %s: %w", row.Id, err)
			}
			slog.Debug("ingest.ledger.assists_corrected",
				"rallyId", rallyID, "nickname", nickname, "stage", stage, "assists", assists)
		}
		return false, nil
	}

	col, err := l.App.FindCollectionByNameOrId("races")
	if err != nil {
		return false, err
	}
	record := core.NewRecord(col)
	record.Set("rally", rallyID)
	record.Set("nickname", nickname)
	record.Set("stage", stage)
	record.Set("timeSeconds", seconds)
	record.Set("car", car)
	record.Set("assists", assists)
	record.Set("recordedAt", time.Now().UnixMilli())
	if err := l.App.Save(record); err != nil {
		return false, fmt.Errorf("append race row for %s stage %d: %w", nickname, stage, err)
	}
	return true, nil
}

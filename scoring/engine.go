package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// ErrBusy means a calculation for the rally is already running; the
// caller should skip this cycle rather than treat it as a failure.
var ErrBusy = errors.New("calculation already in flight")

// Engine computes class and team standings for a rally from the race
// ledger and the rally/season configuration. Standings are always a full
// recompute; nothing is carried over from the previous run.
type Engine struct {
	App  core.App
	busy *busySet
}

func NewEngine(app core.App) *Engine {
	return &Engine{App: app, busy: newBusySet()}
}

// Calculate builds the classification for every class of the rally's
// season, persists it and returns it. At most one calculation runs per
// rally id.
func (e *Engine) Calculate(rallyID string) (map[string]ClassStandings, error) {
	if !e.busy.acquire(rallyID) {
		return nil, fmt.Errorf("rally %s: %w", rallyID, ErrBusy)
	}
	defer e.busy.release(rallyID)

	start := time.Now()

	rally, err := e.loadRally(rallyID)
	if err != nil {
		return nil, err
	}
	season, err := e.loadSeason(rally.SeasonID)
	if err != nil {
		return nil, err
	}
	registry, err := e.loadNicknames()
	if err != nil {
		return nil, err
	}
	rows, err := e.loadRaces(rallyID)
	if err != nil {
		return nil, err
	}

	standings := classify(rows, rally, season, registry)

	if err := e.persist(rallyID, standings); err != nil {
		return nil, err
	}

	slog.Info("scoring.calculate.done",
		"rallyId", rallyID,
		"rows", len(rows),
		"classes", len(standings),
		"elapsedMs", time.Since(start).Milliseconds(),
	)
	return standings, nil
}

// classify is the pure core of the engine: ledger rows plus
// configuration in, per-class standings out.
func classify(rows []raceRow, rally rallyConfig, season seasonConfig, registry map[string]string) map[string]ClassStandings {
	// Rally totals per canonical driver; rows with unregistered
	// nicknames never contribute.
	totals := make(map[string]float64)
	for _, row := range rows {
		if driver, ok := registry[row.Nickname]; ok {
			totals[driver] += row.Time
		}
	}

	standings := make(map[string]ClassStandings, len(season.Classes))
	for classID := range season.Classes {
		standings[classID] = ClassStandings{Drivers: []DriverStanding{}, Teams: []TeamStanding{}}
	}

	for _, row := range rows {
		if row.Stage != rally.StageCount || isDNF(row.Time) {
			continue
		}
		driver, ok := registry[row.Nickname]
		if !ok {
			continue
		}
		classID, ok := classForCar(row.Car, season)
		if !ok {
			continue
		}
		if !assistsAllowed(row.Assists, classID, season) {
			continue
		}
		if isDisqualified(driver, rally) {
			continue
		}
		if hasRestarted(driver, rally) {
			continue
		}
		teamID, team, ok := teamForDriver(driver, classID, rally)
		if !ok || team.Car != row.Car {
			continue
		}

		cs := standings[classID]
		cs.Drivers = append(cs.Drivers, DriverStanding{
			Name:      driver,
			Team:      teamID,
			TotalTime: totals[driver],
			PowerTime: row.Time,
		})
		standings[classID] = cs
	}

	for classID, cs := range standings {
		slices.SortStableFunc(cs.Drivers, byTotalTime)
		for i, points := range finishPoints {
			if i >= len(cs.Drivers) {
				break
			}
			cs.Drivers[i].Score += points
		}

		slices.SortStableFunc(cs.Drivers, byPowerTime)
		for i, points := range powerStagePoints {
			if i >= len(cs.Drivers) {
				break
			}
			cs.Drivers[i].Score += points
		}

		slices.SortStableFunc(cs.Drivers, byScoreThenTotalTime)

		for _, driver := range cs.Drivers {
			idx := slices.IndexFunc(cs.Teams, func(t TeamStanding) bool { return t.ID == driver.Team })
			if idx >= 0 {
				cs.Teams[idx].Score += driver.Score
				continue
			}
			if _, team, ok := teamForDriver(driver.Name, classID, rally); ok && !team.Private {
				cs.Teams = append(cs.Teams, TeamStanding{ID: driver.Team, Score: driver.Score})
			}
		}
		slices.SortStableFunc(cs.Teams, byTeamScore)

		standings[classID] = cs
	}

	return standings
}

func (e *Engine) loadRally(rallyID string) (rallyConfig, error) {
	record, err := e.App.FindRecordById("rallies", rallyID)
	if err != nil {
		return rallyConfig{}, fmt.Errorf("find rally %s: %w", rallyID, err)
	}

	cfg := rallyConfig{
		SeasonID:   record.GetString("season"),
		StageCount: record.GetInt("stageCount"),
		Restarters: make(map[string]struct{}),
	}

	var restarters []string
	if err := record.UnmarshalJSONField("restarters", &restarters); err == nil {
		for _, name := range restarters {
			cfg.Restarters[name] = struct{}{}
		}
	}
	if err := record.UnmarshalJSONField("penalties", &cfg.Penalties); err != nil {
		cfg.Penalties = nil
	}
	if err := record.UnmarshalJSONField("teams", &cfg.Teams); err != nil {
		cfg.Teams = nil
	}
	return cfg, nil
}

func (e *Engine) loadSeason(seasonID string) (seasonConfig, error) {
	if seasonID == "" {
		return seasonConfig{}, fmt.Errorf("rally has no season")
	}
	record, err := e.App.FindRecordById("seasons", seasonID)
	if err != nil {
		return seasonConfig{}, fmt.Errorf("find season %s: %w", seasonID, err)
	}
	var cfg seasonConfig
	if err := record.UnmarshalJSONField("classes", &cfg.Classes); err != nil {
		return seasonConfig{}, fmt.Errorf("season %s classes: %w", seasonID, err)
	}
	return cfg, nil
}

func (e *Engine) loadNicknames() (map[string]string, error) {
	records, err := e.App.FindAllRecords("nicknames")
	if err != nil {
		return nil, fmt.Errorf("load nickname registry: %w", err)
	}
	registry := make(map[string]string, len(records))
	for _, record := range records {
		registry[record.GetString("nick")] = record.GetString("driver")
	}
	return registry, nil
}

func (e *Engine) loadRaces(rallyID string) ([]raceRow, error) {
	records, err := e.App.FindRecordsByFilter("races",
		"rally = {:rally}", "recordedAt,id", 0, 0, dbx.Params{"rally": rallyID})
	if err != nil {
		return nil, fmt.Errorf("load race rows: %w", err)
	}
	rows := make([]raceRow, len(records))
	for i, record := range records {
		rows[i] = raceRow{
			Nickname: record.GetString("nickname"),
			Stage:    record.GetInt("stage"),
			Time:     record.GetFloat("timeSeconds"),
			Car:      record.GetString("car"),
			Assists:  record.GetBool("assists"),
		}
	}
	return rows, nil
}

// persist overwrites the stored standings of every class in one
// transaction, keyed by (rally, class).
func (e *Engine) persist(rallyID string, standings map[string]ClassStandings) error {
	return e.App.RunInTransaction(func(txApp core.App) error {
		col, err := txApp.FindCollectionByNameOrId("standings")
		if err != nil {
			return err
		}

		for _, classID := range slices.Sorted(maps.Keys(standings)) {
			record, err := txApp.FindFirstRecordByFilter("standings",
				"rally = {:rally} && class = {:class}",
				dbx.Params{"rally": rallyID, "class": classID})
			if err != nil || record == nil {
				record = core.NewRecord(col)
				record.Set("rally", rallyID)
				record.Set("class", classID)
			}
			record.Set("drivers", standings[classID].Drivers)
			record.Set("teams", standings[classID].Teams)
			record.Set("updatedAt", time.Now().UnixMilli())
			if err := txApp.Save(record); err != nil {
				return fmt.Errorf("save standings for class %s: %w", classID, err)
			}
		}
		return nil
	})
}

package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Core domain collections: seasons, rallies, nicknames, races, standings
// and the raw event cache.
func init() {
	m.Register(func(app core.App) error {
		seasons := core.NewBaseCollection("seasons")
		seasons.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255, Presentable: true},
			&core.JSONField{Name: "classes", MaxSize: 65536},
		)
		seasons.AddIndex("ux_seasons_name", true, "name", "")
		seasons.ListRule = types.Pointer("")
		seasons.ViewRule = types.Pointer("")
		if err := app.Save(seasons); err != nil {
			return err
		}

		rallies := core.NewBaseCollection("rallies")
		rallies.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255, Presentable: true},
			&core.RelationField{Name: "season", CollectionId: seasons.Id, MaxSelect: 1, Required: true},
			&core.NumberField{Name: "stageCount", Required: true},
			&core.JSONField{Name: "events", MaxSize: 16384},
			&core.JSONField{Name: "restarters", MaxSize: 65536},
			&core.JSONField{Name: "penalties", MaxSize: 65536},
			&core.JSONField{Name: "teams", MaxSize: 131072},
			&core.BoolField{Name: "active"},
		)
		rallies.AddIndex("ux_rallies_name", true, "name", "")
		rallies.ListRule = types.Pointer("")
		rallies.ViewRule = types.Pointer("")
		if err := app.Save(rallies); err != nil {
			return err
		}

		nicknames := core.NewBaseCollection("nicknames")
		nicknames.Fields.Add(
			&core.TextField{Name: "nick", Required: true, Max: 255, Presentable: true},
			&core.TextField{Name: "driver", Required: true, Max: 255},
		)
		nicknames.AddIndex("ux_nicknames_nick", true, "nick", "")
		nicknames.ListRule = types.Pointer("")
		nicknames.ViewRule = types.Pointer("")
		if err := app.Save(nicknames); err != nil {
			return err
		}

		races := core.NewBaseCollection("races")
		races.Fields.Add(
			&core.RelationField{Name: "rally", CollectionId: rallies.Id, MaxSelect: 1, Required: true},
			&core.TextField{Name: "nickname", Required: true, Max: 255, Presentable: true},
			&core.NumberField{Name: "stage", Required: true},
			&core.NumberField{Name: "timeSeconds", Required: true},
			&core.TextField{Name: "car", Max: 255},
			&core.BoolField{Name: "assists"},
			&core.NumberField{Name: "recordedAt"}, // epoch millis
		)
		races.AddIndex("idx_races_rally_nick", false, "rally, nickname", "")
		races.AddIndex("idx_races_rally_nick_stage", false, "rally, nickname, stage", "")
		races.ListRule = types.Pointer("")
		races.ViewRule = types.Pointer("")
		if err := app.Save(races); err != nil {
			return err
		}

		standings := core.NewBaseCollection("standings")
		standings.Fields.Add(
			&core.RelationField{Name: "rally", CollectionId: rallies.Id, MaxSelect: 1, Required: true},
			&core.TextField{Name: "class", Required: true, Max: 128, Presentable: true},
			&core.JSONField{Name: "drivers", MaxSize: 262144},
			&core.JSONField{Name: "teams", MaxSize: 131072},
			&core.NumberField{Name: "updatedAt"}, // epoch millis
		)
		standings.AddIndex("ux_standings_rally_class", true, "rally, class", "")
		standings.ListRule = types.Pointer("")
		standings.ViewRule = types.Pointer("")
		if err := app.Save(standings); err != nil {
			return err
		}

		eventCache := core.NewBaseCollection("event_cache")
		eventCache.Fields.Add(
			&core.TextField{Name: "eventId", Required: true, Max: 64, Presentable: true},
			&core.RelationField{Name: "rally", CollectionId: rallies.Id, MaxSelect: 1},
			&core.JSONField{Name: "payload", MaxSize: 2097152},
			&core.JSONField{Name: "stageMeta", MaxSize: 65536},
			&core.NumberField{Name: "requestCount"},
			&core.NumberField{Name: "elapsedMs"},
			&core.NumberField{Name: "fetchedAt"}, // epoch millis
		)
		eventCache.AddIndex("ux_event_cache_eventId", true, "eventId", "")
		eventCache.ListRule = types.Pointer("")
		eventCache.ViewRule = types.Pointer("")
		if err := app.Save(eventCache); err != nil {
			return err
		}

		return nil
	}, func(app core.App) error {
		for _, name := range []string{"event_cache", "standings", "races", "nicknames", "rallies", "seasons"} {
			col, _ := app.FindCollectionByNameOrId(name)
			if col != nil {
				if err := app.Delete(col); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

const lastUpdatedFieldName = "lastUpdated"

// Adds a server-managed lastUpdated timestamp so the frontend can order
// realtime updates without trusting client clocks.
func init() {
	m.Register(func(app core.App) error {
		targets := []string{
			"seasons",
			"rallies",
			"nicknames",
			"races",
			"standings",
			"event_cache",
			"ingest_targets",
			"server_settings",
		}

		for _, name := range targets {
			col, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if col.Fields.GetByName(lastUpdatedFieldName) == nil {
				col.Fields.Add(&core.AutodateField{
					Name:     lastUpdatedFieldName,
					System:   true,
					OnCreate: true,
					OnUpdate: true,
				})
			}
			if err := app.Save(col); err != nil {
				return err
			}
		}

		return nil
	}, func(app core.App) error {
		targets := []string{
			"server_settings",
			"ingest_targets",
			"event_cache",
			"standings",
			"races",
			"nicknames",
			"rallies",
			"seasons",
		}

		for _, name := range targets {
			col, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			col.Fields.RemoveByName(lastUpdatedFieldName)
			if err := app.Save(col); err != nil {
				return err
			}
		}

		return nil
	})
}

package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"rally-dashboard/bootstrap/config"
	"rally-dashboard/live"
	"rally-dashboard/scheduler"
)

// RegisterServe wires startup work onto the serve event: superuser
// bootstrap, scheduler loops, the health route and the live feed.
func RegisterServe(app *pocketbase.PocketBase, manager *scheduler.Manager, hub *live.Hub, flags config.Flags) {
	live.RegisterServer(app, hub, flags.AuthToken)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := ensureSuperuser(app); err != nil {
			return fmt.Errorf("failed to ensure superuser: %w", err)
		}

		setSchedulerEnabledFromFlag(app, flags.IngestEnabled)

		live.RegisterStandingsFeed(app, hub)

		ctx, cancel := context.WithCancel(context.Background())
		if se.Server != nil {
			se.Server.RegisterOnShutdown(cancel)
		} else {
			defer cancel()
		}
		manager.StartLoops(ctx)

		se.Router.GET("/health", func(c *core.RequestEvent) error {
			return c.JSON(http.StatusOK, map[string]any{
				"status":    "ok",
				"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
			})
		})

		slog.Info("server.ready",
			"port", flags.Port,
			"racenet", flags.RacenetURL,
			"ingestEnabled", flags.IngestEnabled,
		)
		return se.Next()
	})
}

func setSchedulerEnabledFromFlag(app core.App, enabled bool) {
	col, err := app.FindCollectionByNameOrId("server_settings")
	if err != nil {
		slog.Warn("server_settings.collection.find.error", "err", err)
		return
	}
	rec, _ := app.FindFirstRecordByFilter("server_settings", "key = 'scheduler.enabled'", nil)
	if rec == nil {
		rec = core.NewRecord(col)
		rec.Set("key", "scheduler.enabled")
	}
	rec.Set("value", strconv.FormatBool(enabled))
	if err := app.Save(rec); err != nil {
		slog.Warn("server_settings.save.error", "key", "scheduler.enabled", "err", err)
	}
}

func ensureSuperuser(app core.App) error {
	email := os.Getenv("SUPERUSER_EMAIL")
	if email == "" {
		email = "admin@example.com"
	}
	password := os.Getenv("SUPERUSER_PASSWORD")
	generated := false
	if password == "" {
		p, err := generatePassword(24)
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		password = p
		generated = true
	}

	superusers, err := app.FindCollectionByNameOrId(core.CollectionNameSuperusers)
	if err != nil {
		return fmt.Errorf("failed to find superusers collection: %w", err)
	}

	existing, _ := app.FindAuthRecordByEmail(core.CollectionNameSuperusers, email)
	if existing != nil {
		slog.Info("superuser.ensure.skipped", "reason", "superuser already exists", "email", email)
		return nil
	}

	record := core.NewRecord(superusers)
	record.Set("email", email)
	record.Set("password", password)
	if err := app.Save(record); err != nil {
		return fmt.Errorf("failed to create superuser: %w", err)
	}

	if generated {
		slog.Info("superuser.ensure.created", "email", email, "password", password)
	} else {
		slog.Info("superuser.ensure.created", "email", email)
	}
	return nil
}

func generatePassword(length int) (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		out[i] = chars[n.Int64()]
	}
	return string(out), nil
}

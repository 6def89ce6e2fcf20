package live

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/subscriptions"
	"golang.org/x/sync/errgroup"
)

const (
	// StandingsTopic is the realtime subscription name standings updates
	// are broadcast on.
	StandingsTopic = "standings_update"

	// clientsChunkSize mirrors the default PocketBase chunk size to avoid
	// sending a message to too many clients in a single goroutine.
	clientsChunkSize = 300
)

// StandingsUpdate is the payload sent to websocket and SSE clients when
// a standings record changes.
type StandingsUpdate struct {
	Rally     string `json:"rally"`
	Class     string `json:"class"`
	UpdatedAt int64  `json:"updatedAt"`
	Timestamp string `json:"timestamp"`
}

// RegisterStandingsFeed broadcasts every standings save to the websocket
// hub and the PocketBase realtime broker, so both transports carry the
// same signal.
func RegisterStandingsFeed(app core.App, hub *Hub) {
	handle := func(e *core.RecordEvent) error {
		update := StandingsUpdate{
			Rally:     e.Record.GetString("rally"),
			Class:     e.Record.GetString("class"),
			UpdatedAt: int64(e.Record.GetInt("updatedAt")),
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		hub.Broadcast(update)
		if err := notify(app, StandingsTopic, update); err != nil {
			slog.Warn("live.standings.broadcast_error", "err", err)
		}
		return e.Next()
	}

	app.OnRecordAfterCreateSuccess("standings").BindFunc(handle)
	app.OnRecordAfterUpdateSuccess("standings").BindFunc(handle)
}

func notify(app core.App, subscription string, data any) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := subscriptions.Message{
		Name: subscription,
		Data: rawData,
	}

	chunks := app.SubscriptionsBroker().ChunkedClients(clientsChunkSize)

	group := new(errgroup.Group)
	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			for _, client := range chunk {
				if !client.HasSubscription(subscription) {
					continue
				}
				client.Send(message)
			}
			return nil
		})
	}

	return group.Wait()
}

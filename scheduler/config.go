package scheduler

import (
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

type Config struct {
	EventInterval   time.Duration
	WorkerInterval  time.Duration
	RescoreInterval time.Duration
	Concurrency     int
	JitterMs        int
}

func (m *Manager) ensureDefaultSettings() {
	defaults := map[string]string{
		"scheduler.enabled":           "true",
		"scheduler.eventIntervalMs":   "60000",
		"scheduler.workerIntervalMs":  "500",
		"scheduler.rescoreIntervalMs": "300000",
		"scheduler.concurrency":       "2",
		"scheduler.jitterMs":          "1500",
	}
	col, err := m.App.FindCollectionByNameOrId("server_settings")
	if err != nil {
		return
	}
	for k, v := range defaults {
		rec, _ := m.App.FindFirstRecordByFilter("server_settings", "key = {:k}", dbx.Params{"k": k})
		if rec == nil {
			rec = core.NewRecord(col)
			rec.Set("key", k)
			rec.Set("value", v)
			_ = m.App.Save(rec)
		}
	}
}

func (m *Manager) loadConfigFromDB() Config {
	readInt := func(key string, def int) int {
		rec, err := m.App.FindFirstRecordByFilter("server_settings", "key = {:k}", dbx.Params{"k": key})
		if err != nil || rec == nil {
			return def
		}
		var n int
		if _, err := fmt.Sscanf(rec.GetString("value"), "%d", &n); err == nil {
			return n
		}
		return def
	}
	return Config{
		EventInterval:   time.Duration(readInt("scheduler.eventIntervalMs", 60000)) * time.Millisecond,
		WorkerInterval:  time.Duration(readInt("scheduler.workerIntervalMs", 500)) * time.Millisecond,
		RescoreInterval: time.Duration(readInt("scheduler.rescoreIntervalMs", 300000)) * time.Millisecond,
		Concurrency:     readInt("scheduler.concurrency", 2),
		JitterMs:        readInt("scheduler.jitterMs", 1500),
	}
}

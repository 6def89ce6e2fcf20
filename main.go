package main

import (
	"log"

	"rally-dashboard/bootstrap/config"
	"rally-dashboard/bootstrap/server"
	"rally-dashboard/fetch"
	"rally-dashboard/ingest"
	"rally-dashboard/live"
	"rally-dashboard/logger"
	"rally-dashboard/racenet"
	"rally-dashboard/scheduler"
	"rally-dashboard/scoring"

	_ "rally-dashboard/migrations"
)

func main() {
	flags := config.ParseFlags()
	logger.Configure(flags.LogLevel)

	app := config.NewPocketBaseApp(flags)

	client, err := racenet.NewClient(flags.RacenetURL)
	if err != nil {
		log.Fatal("racenet client init:", err)
	}
	orchestrator := fetch.NewOrchestrator(client)
	ingestService := ingest.NewService(app)
	engine := scoring.NewEngine(app)
	manager := scheduler.NewManager(app, orchestrator, ingestService, engine)
	hub := live.NewHub()

	server.RegisterServe(app, manager, hub, flags)

	app.RootCmd.SetArgs(config.PreparePocketBaseArgs(flags))
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
)

type Flags struct {
	RacenetURL    string
	Port          int
	LogLevel      string
	IngestEnabled bool
	AuthToken     string
	DBDir         string
}

func ParseFlags() Flags {
	var out Flags
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&out.RacenetURL, "racenet", "https://www.dirtgame.com/uk/api/event", "Rally results API endpoint")
	fs.IntVar(&out.Port, "port", 3000, "Server port")
	fs.StringVar(&out.LogLevel, "log-level", "info", "Log level: error|warn|info|debug")
	fs.BoolVar(&out.IngestEnabled, "ingest-enabled", true, "Enable background scheduler loops")
	fs.StringVar(&out.AuthToken, "auth-token", "", "Bearer token required on the /live websocket")
	fs.StringVar(&out.DBDir, "db-dir", "", "Directory for SQLite database files (empty = in-memory)")

	showHelp := fs.Bool("help", false, "Show help message")
	_ = fs.Parse(os.Args[1:])
	if *showHelp {
		fmt.Printf(helpText(), os.Args[0])
		os.Exit(0)
	}

	if out.AuthToken == "" {
		out.AuthToken = os.Getenv("AUTH_TOKEN")
	}

	return out
}

func PreparePocketBaseArgs(flags Flags) []string {
	return []string{"serve", "--http", fmt.Sprintf("0.0.0.0:%d", flags.Port)}
}

func NewPocketBaseApp(flags Flags) *pocketbase.PocketBase {
	var app *pocketbase.PocketBase
	if flags.DBDir == "" {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  ".",
			DBConnect: func(dbPath string) (*dbx.DB, error) {
				base := filepath.Base(dbPath)
				dsn := "file:" + base + "?mode=memory&cache=shared"
				db, err := dbx.Open("sqlite", dsn)
				if err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA foreign_keys=ON;").Execute(); err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA busy_timeout=1000;").Execute(); err != nil {
					return nil, err
				}
				return db, nil
			},
		})
	} else {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  flags.DBDir,
		})
	}
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{Automigrate: true})
	return app
}

func helpText() string {
	return `
Usage: %s [OPTIONS]

Options:
  --racenet string         Rally results API endpoint
  --port int               Set the server port (default: 3000)
  --log-level string       Log level: error|warn|info|debug
  --ingest-enabled bool    Enable background scheduler loops (default: true)
  --auth-token string      Bearer token required on the /live websocket
  --db-dir string          Directory for SQLite database files (empty = in-memory)
  --help                   Show this help message

Environment Variables:
  AUTH_TOKEN               Websocket token (alternative to --auth-token flag)
  SUPERUSER_EMAIL          Superuser email created at startup
  SUPERUSER_PASSWORD       Superuser password created at startup
  LOG_FILE                 Also write logs to this file (ANSI stripped)

Note: The server binds to all network interfaces (0.0.0.0)
      PocketBase API will be available at /api/* endpoints
      PocketBase Admin UI will be available at /_/
      Standings websocket feed will be available at /live

Examples:
  # In-memory database, default cadence
  rally-dashboard

  # Persistent database and custom port
  rally-dashboard -db-dir=./data -port=4000

  # Protect the live feed
  rally-dashboard -auth-token="your-token-here"
`
}

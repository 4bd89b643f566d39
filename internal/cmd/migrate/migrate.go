package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/cryptochat-server/internal/config"
	registrymigrate "github.com/chirino/cryptochat-server/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	// Store plugins register their own migrators alongside their primary interface.
	_ "github.com/chirino/cryptochat-server/internal/plugin/store/sqlite"
	_ "github.com/chirino/cryptochat-server/internal/plugin/store/tinydb"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run datastore migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "datastore",
				Sources: cli.EnvVars("CRYPTOCHAT_DATASTORE"),
				Usage:   "Datastore backend (tinydb|sqlite)",
				Value:   "tinydb",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Sources: cli.EnvVars("CRYPTOCHAT_DB_PATH", "DATABASE_LOCATION"),
				Usage:   "Location of the JSON chat database (tinydb backend)",
			},
			&cli.StringFlag{
				Name:    "db-url",
				Sources: cli.EnvVars("CRYPTOCHAT_DB_URL"),
				Usage:   "SQLite DSN (sqlite backend)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DatastoreType = cmd.String("datastore")
			if v := cmd.String("db-path"); v != "" {
				cfg.DBPath = v
			}
			if v := cmd.String("db-url"); v != "" {
				cfg.DBURL = v
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}

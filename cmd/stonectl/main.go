package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sudo-init-do/stonemart/internal/admin"
	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/config"
	"github.com/sudo-init-do/stonemart/internal/db"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/logging"
	"github.com/sudo-init-do/stonemart/internal/logistics"
	"github.com/sudo-init-do/stonemart/internal/marketplace"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store/pgstore"
)

func main() {
	app := &cli.App{
		Name:     "stonectl",
		Usage:    "operator tasks for the stonemart API",
		Metadata: map[string]interface{}{},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["log"] = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply or roll back schema migrations",
				Subcommands: []*cli.Command{
					{
						Name: "up",
						Action: func(c *cli.Context) error {
							return db.MigrateUp(configOf(c).Postgres.DSN())
						},
					},
					{
						Name: "down",
						Action: func(c *cli.Context) error {
							return db.MigrateDown(configOf(c).Postgres.DSN())
						},
					},
				},
			},
			{
				Name:  "promote",
				Usage: "set a user's role by email",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "role", Value: string(models.RoleAdmin)},
				},
				Action: withStore(func(c *cli.Context, st *pgstore.Store) error {
					u, err := admin.Promote(c.Context, st, c.String("email"), models.Role(c.String("role")))
					if err != nil {
						return err
					}
					fmt.Printf("%s is now %s\n", u.Email, u.Role)
					return nil
				}),
			},
			{
				Name:  "expire-bids",
				Usage: "mark pending bids past their validity as expired",
				Action: withStore(func(c *cli.Context, st *pgstore.Store) error {
					cfg := configOf(c)
					svc := marketplace.NewService(st, nil, alerts.Discard{}, events.Noop{}, logOf(c), marketplace.Options{BidValidity: cfg.BidValidity})
					n, err := svc.ExpireStaleBids(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("expired %d bids\n", n)
					return nil
				}),
			},
			{
				Name:  "prune-locations",
				Usage: "delete location history older than the retention window",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "defaults to LOCATION_RETENTION"},
				},
				Action: withStore(func(c *cli.Context, st *pgstore.Store) error {
					age := c.Duration("older-than")
					if age <= 0 {
						age = configOf(c).LocationTTL
					}
					svc := logistics.NewService(st, nil, alerts.Discard{}, events.Noop{}, logOf(c))
					n, err := svc.PruneLocationHistory(c.Context, time.Now().UTC().Add(-age))
					if err != nil {
						return err
					}
					fmt.Printf("removed %d location points\n", n)
					return nil
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("stonectl failed")
	}
}

func configOf(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func logOf(c *cli.Context) *logrus.Logger {
	return c.App.Metadata["log"].(*logrus.Logger)
}

func withStore(fn func(*cli.Context, *pgstore.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
		defer cancel()
		pool, err := db.Connect(ctx, configOf(c).Postgres.DSN())
		if err != nil {
			return err
		}
		defer pool.Close()
		c.Context = ctx
		return fn(c, pgstore.New(pool))
	}
}

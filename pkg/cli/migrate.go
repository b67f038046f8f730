package cli

import (
	"context"
	"fmt"

	"github.com/gapassess/gap/pkg/adapter"
	"github.com/gapassess/gap/pkg/model"
	"github.com/gapassess/gap/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	var (
		cfg          config
		textOwnerIDs bool
	)

	return &cli.Command{
		Name: "migrate",
		Usage: "Create the PostgreSQL tables used by the postgres backend. " +
			"Owner ids are uuid columns by default; mock identity ids are not UUIDs and need --text-owner-ids",
		Flags: withFlags(&cfg, []cli.Flag{
			&cli.BoolFlag{
				Name:        "text-owner-ids",
				Usage:       "Declare owner id columns as text so non-UUID identities are accepted",
				Sources:     cli.EnvVars("GAP_TEXT_OWNER_IDS"),
				Destination: &textOwnerIDs,
			},
		}, storeFlags),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			if cfg.databaseURL == "" {
				return goerr.Wrap(model.ErrInvalidArgument, "database-url is required for migrate")
			}

			db, err := adapter.NewPostgres(ctx, cfg.databaseURL, cfg.databaseKey)
			if err != nil {
				return goerr.Wrap(err, "failed to connect postgres")
			}
			defer func() {
				if err := db.Close(); err != nil {
					logging.From(ctx).Warn("failed to close postgres", "error", err)
				}
			}()

			var opts []adapter.MigrateOption
			if textOwnerIDs {
				opts = append(opts, adapter.WithTextOwnerIDs())
			}
			if err := db.Migrate(ctx, opts...); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Schema applied\n")
			return nil
		},
	}
}

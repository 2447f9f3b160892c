package cmd

import (
	"context"
	"fmt"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/postgres"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// status creates the status command: read the migrafold.revisions tracking
// table and print every recorded apply attempt in execution order.
//
// Example usage:
//
//	migrafold status --db-url postgres://localhost:5432/app
func status(load config.Loader) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show applied revisions from the tracking table",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "PostgreSQL connection URL",
				Sources: cli.EnvVars("MIGRAFOLD_DB_URL"),
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			url := connectionURL(cfg, cmd)
			if url == "" {
				return errors.New("no database URL (set --db-url, MIGRAFOLD_DB_URL, or url in migrafold.yaml)")
			}

			conn, err := postgres.Connect(ctx, url)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close(ctx) }()

			revisions, err := postgres.New(conn, "").Status(ctx)
			if err != nil {
				return err
			}
			if len(revisions) == 0 {
				fmt.Println("No revisions recorded")
				return nil
			}

			for _, r := range revisions {
				outcome := "ok"
				if r.Error != nil {
					outcome = fmt.Sprintf("failed after %d/%d statements: %s", r.Applied, r.Total, *r.Error)
				}
				fmt.Printf("%s  %s  %v  %s\n", r.Version, r.ExecutedAt.Format("2006-01-02 15:04:05"), r.ExecutionTime, outcome)
			}
			return nil
		},
	}
}

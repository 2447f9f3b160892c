package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consolidator"
	"github.com/migrafold/migrafold/pkg/postgres"
	"github.com/migrafold/migrafold/pkg/rules"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type applyParams struct {
	fx.In

	Load    config.Loader
	Version *Version
}

// apply creates the apply command: verify, consolidate, and execute the
// plan against a PostgreSQL database, one group per transaction.
//
// Groups already recorded in migrafold.revisions with a matching content
// hash are skipped. Execution stops at the first failed group; groups
// committed before it stay applied, and the command reports exactly which
// groups succeeded.
//
// Example usage:
//
//	migrafold apply --db-url postgres://localhost:5432/app
func apply(p applyParams) *cli.Command {
	return &cli.Command{
		Name:   "apply",
		Usage:  "Apply the consolidated plan to a database",
		Before: requireConfig(p.Load),
		Flags: []cli.Flag{
			dirFlag(),
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
			cfg, err := p.Load()
			if err != nil {
				return err
			}

			url := connectionURL(cfg, cmd)
			if url == "" {
				return errors.New("no database URL (set --db-url, MIGRAFOLD_DB_URL, or url in migrafold.yaml)")
			}

			dir, g, err := analyze(migrationDir(cfg, cmd))
			if err != nil {
				return err
			}

			if issues := rules.Validate(dir, g); rules.HasCritical(issues) {
				printIssues(os.Stdout, issues, true)
				return errors.New("refusing to apply: critical issues found")
			}

			plan, err := consolidator.Consolidate(dir, g, cfg.Assignment())
			if err != nil {
				return err
			}

			conn, err := postgres.Connect(ctx, url)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close(ctx) }()

			summary, err := postgres.New(conn, p.Version.Version).Apply(ctx, plan)
			if err != nil {
				return err
			}

			printSummary(summary)
			if failed := summary.Failed(); failed != nil {
				return errors.Wrapf(failed.Error, "group %s failed", failed.Group)
			}
			return nil
		},
	}
}

func connectionURL(cfg *config.Config, cmd *cli.Command) string {
	if url := cmd.String("db-url"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.URL
	}
	return ""
}

func printSummary(summary *postgres.Summary) {
	for _, r := range summary.Results {
		switch r.Status {
		case postgres.StatusApplied:
			fmt.Printf("applied %s (%d statements in %v)\n", r.Group, r.Applied, r.ExecutionTime)
		case postgres.StatusSkipped:
			fmt.Printf("skipped %s (already applied)\n", r.Group)
		case postgres.StatusFailed:
			fmt.Printf("failed  %s after %d/%d statements: %v\n", r.Group, r.Applied, r.Total, r.Error)
		}
	}

	c := summary.Counts()
	fmt.Printf("%d applied, %d skipped, %d failed\n", c.Applied, c.Skipped, c.Failed)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates and executes the main migrafold CLI application with the
// given version and command-line arguments.
//
// The application operates on a migrafold project: a directory holding a
// migrafold.yaml and a migration directory. The global --project flag
// selects the project directory; commands resolve the migration directory
// from their own --dir flag, the project config, or the default, in that
// order.
//
// Example usage:
//
//	# Analyze migrations in the current project
//	migrafold verify
//
//	# Consolidate a specific project into ./consolidated
//	migrafold --project /path/to/project consolidate --output consolidated
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := &cli.Command{
		Name:  "migrafold",
		Usage: "A tool for analyzing and consolidating SQL migrations",
		Description: `migrafold parses a directory of incremental SQL migration files, builds
a dependency graph of the database objects they define, reports structural
hazards (duplicate definitions, destructive CASCADE usage, circular
dependencies, missing idempotency guards, drop-then-recreate data loss),
and folds the history into a small set of grouped, idempotent files that
reproduce the same schema from empty.`,
		Version: p.Version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "project",
				Aliases:     []string{"p"},
				Usage:       "the project directory",
				Value:       ".",
				DefaultText: "Current directory",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, os.Chdir(cmd.String("project"))
		},
		Commands: p.Commands,
	}

	p.Lifecycle.Append(fx.StartHook(func() {
		if err := app.Run(p.Ctx, p.Args); err != nil {
			slog.Error("Error running command", "err", err)
			_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
		}

		_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
	}))
}

func requireConfig(load config.Loader) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		cfg, err := load()
		if err != nil {
			return ctx, err
		}
		if cfg == nil {
			return ctx, errors.New("migrafold.yaml not found (run 'migrafold init' first)")
		}

		return ctx, nil
	}
}

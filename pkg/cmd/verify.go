package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/rules"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// verify creates the verify command: parse, build the dependency graph, run
// every validation rule, and report findings grouped by severity.
//
// Example usage:
//
//	# Verify the configured migration directory
//	migrafold verify
//
//	# Verify a specific directory with per-issue source locations
//	migrafold verify --dir db/migrations --verbose
//
// Exits nonzero when any critical issue is found.
func verify(load config.Loader) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Analyze migrations and report structural hazards",
		Flags: []cli.Flag{
			dirFlag(),
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "show source locations for each finding",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			dir, g, err := analyze(migrationDir(cfg, cmd))
			if err != nil {
				return err
			}

			issues := rules.Validate(dir, g)
			if len(issues) == 0 {
				fmt.Printf("Verified %d migration files: no issues found\n", len(dir.Files))
				return nil
			}

			printIssues(os.Stdout, issues, cmd.Bool("verbose"))

			if rules.HasCritical(issues) {
				return errors.New("critical issues found")
			}
			return nil
		},
	}
}

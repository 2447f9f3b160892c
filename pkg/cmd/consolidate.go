package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consolidator"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// consolidate creates the consolidate command: fold the migration history
// into one idempotent file per configured group.
//
// Example usage:
//
//	# Preview the plan without writing anything
//	migrafold consolidate --dry-run
//
//	# Write one file per group into ./consolidated
//	migrafold consolidate --output consolidated
//
// Consolidation refuses cyclic or duplicate-creating inputs; run verify to
// see the underlying findings in context.
func consolidate(load config.Loader) *cli.Command {
	return &cli.Command{
		Name:  "consolidate",
		Usage: "Fold migration history into grouped idempotent files",
		Flags: []cli.Flag{
			dirFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the plan instead of writing files",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "directory to write consolidated files to",
				Value:   "consolidated",
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

			dir, g, err := analyze(migrationDir(cfg, cmd))
			if err != nil {
				return err
			}

			plan, err := consolidator.Consolidate(dir, g, cfg.Assignment())
			if err != nil {
				var planErr *consolidator.PlanError
				if errors.As(err, &planErr) {
					printIssues(os.Stdout, planErr.Issues, true)
				}
				return err
			}

			if cmd.Bool("dry-run") {
				printPlan(plan)
				return nil
			}

			output := cmd.String("output")
			if err := plan.Write(output); err != nil {
				return err
			}

			fmt.Printf("Consolidated %d files into %d groups in %s\n", len(dir.Files), len(plan.Groups), output)
			return nil
		},
	}
}

func printPlan(plan *consolidator.Plan) {
	for _, group := range plan.Groups {
		fmt.Printf("-- %s (%d statements from %d files)\n", group.FileName(), len(group.Statements), len(group.Sources))
		fmt.Print(group.Render())
		fmt.Println()
	}
}

package cmd

import (
	"context"
	"os"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/export"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// graphCmd creates the graph command: render the object dependency graph.
//
// Example usage:
//
//	# Plain adjacency listing to stdout
//	migrafold graph
//
//	# Graphviz dot into a file
//	migrafold graph --format dot --output schema.dot
//
//	# Mermaid flowchart, pasteable into markdown
//	migrafold graph --format mermaid
func graphCmd(load config.Loader) *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Render the object dependency graph",
		Flags: []cli.Flag{
			dirFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format: text, dot, or mermaid",
				Value:   string(export.FormatText),
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "file to write to instead of stdout",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := export.ParseFormat(cmd.String("format"))
			if err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return err
			}

			_, g, err := analyze(migrationDir(cfg, cmd))
			if err != nil {
				return err
			}

			out := os.Stdout
			if path := cmd.String("output"); path != "" {
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, consts.ModeFile)
				if err != nil {
					return errors.Wrapf(err, "failed to create output file: %s", path)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			return export.Render(out, g, format)
		},
	}
}

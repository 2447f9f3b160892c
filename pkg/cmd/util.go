package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/graph"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/migrafold/migrafold/pkg/rules"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// dirFlag is the per-command migration directory flag, shared so every
// analysis command resolves the directory the same way.
func dirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"d"},
		Usage:   "the migration directory",
		Config: cli.StringConfig{
			TrimSpace: true,
		},
	}
}

// migrationDir resolves the migration directory: the --dir flag when given,
// then the config, then the default.
func migrationDir(cfg *config.Config, cmd *cli.Command) string {
	if dir := cmd.String("dir"); dir != "" {
		return dir
	}
	if cfg != nil && cfg.Dir != "" {
		return cfg.Dir
	}
	return consts.DefaultMigrationDir
}

// loadDir loads and parses the migration directory.
func loadDir(path string) (*migrator.Dir, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Errorf("migration directory does not exist: %s", path)
	}

	dir, err := migrator.LoadDir(os.DirFS(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load migration directory")
	}
	return dir, nil
}

// analyze loads the migration directory and builds its dependency graph.
func analyze(path string) (*migrator.Dir, *graph.Graph, error) {
	dir, err := loadDir(path)
	if err != nil {
		return nil, nil, err
	}
	return dir, graph.Build(dir.Files), nil
}

// printIssues writes issues grouped by severity, most severe first. With
// verbose set, each issue's source locations are listed beneath it.
func printIssues(w io.Writer, issues []rules.Issue, verbose bool) {
	bySeverity := make(map[rules.Severity][]rules.Issue)
	for _, issue := range issues {
		bySeverity[issue.Severity] = append(bySeverity[issue.Severity], issue)
	}

	for _, severity := range []rules.Severity{rules.SeverityCritical, rules.SeverityWarning, rules.SeverityInfo} {
		group := bySeverity[severity]
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s (%d):\n", strings.ToUpper(string(severity)), len(group))
		for _, issue := range group {
			fmt.Fprintf(w, "  [%s] %s\n", issue.Code, issue.Message)
			if verbose {
				for _, loc := range issue.Locations {
					fmt.Fprintf(w, "      %s, statement %d\n", loc.File, loc.Index+1)
				}
			}
		}
		fmt.Fprintln(w)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

const configTemplate = `# migrafold project configuration
dir: migrations

# Consolidation groups. Objects are assigned to the first group whose
# pattern matches; everything else lands in "misc". Patterns are exact
# object names or prefixes ending in "*".
#
# groups:
#   - name: core
#     match: ["users", "accounts", "user_*"]
#   - name: analytics
#     match: ["analytics.*"]
`

// initCmd creates the init command: scaffold a new migrafold project with a
// migrafold.yaml and an empty migration directory.
//
// Example usage:
//
//	migrafold init
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a new migrafold project",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := os.Stat(consts.ConfigFile); err == nil {
				return errors.Errorf("%s already exists", consts.ConfigFile)
			}

			if err := os.WriteFile(consts.ConfigFile, []byte(configTemplate), consts.ModeFile); err != nil {
				return errors.Wrapf(err, "failed to write %s", consts.ConfigFile)
			}

			dir := consts.DefaultMigrationDir
			if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
				return errors.Wrapf(err, "failed to create migration directory: %s", dir)
			}

			keep := filepath.Join(dir, ".gitkeep")
			if err := os.WriteFile(keep, nil, consts.ModeFile); err != nil {
				return errors.Wrapf(err, "failed to write %s", keep)
			}

			fmt.Printf("Initialized migrafold project (%s, %s/)\n", consts.ConfigFile, dir)
			return nil
		},
	}
}

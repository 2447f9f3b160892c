package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/migrafold/migrafold/pkg/config"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// rehash creates the rehash command: recompute the migrafold.sum integrity
// ledger from the current migration contents.
//
// Use after intentionally editing a migration file; verify reports SUM001
// until the recorded ledger matches again.
//
// Example usage:
//
//	migrafold rehash
func rehash(load config.Loader) *cli.Command {
	return &cli.Command{
		Name:  "rehash",
		Usage: "Regenerate the migration sum file",
		Flags: []cli.Flag{
			dirFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			path := migrationDir(cfg, cmd)
			dir, err := loadDir(path)
			if err != nil {
				return err
			}

			sumPath := filepath.Join(path, consts.SumFileName)
			f, err := os.OpenFile(sumPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, consts.ModeFile)
			if err != nil {
				return errors.Wrapf(err, "failed to create sum file: %s", sumPath)
			}
			defer func() { _ = f.Close() }()

			if _, err := dir.SumFile.WriteTo(f); err != nil {
				return errors.Wrap(err, "failed to write sum file")
			}

			fmt.Printf("Rehashed %d migration files into %s\n", dir.SumFile.Files(), sumPath)
			return nil
		},
	}
}

package main

import (
	"context"
	"os"

	"github.com/migrafold/migrafold/pkg/cmd"
	"github.com/migrafold/migrafold/pkg/config"
	"go.uber.org/fx"
)

// NB: These are set by GoReleaser during a build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	fx.New(
		fx.NopLogger,
		fx.Provide(
			func() context.Context { return context.Background() },
			func() []string { return os.Args },
		),
		fx.Supply(&cmd.Version{
			Version:   version,
			Commit:    commit,
			Timestamp: date,
		}),
		config.Module,
		cmd.Module,
	).Run()
}

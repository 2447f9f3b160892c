package config

import (
	"os"
	"sync"

	"github.com/migrafold/migrafold/pkg/consts"
	"go.uber.org/fx"
)

// Loader resolves the project configuration on first use. Commands call it
// from their actions, which run after the global --project flag has changed
// the working directory, so the config is read from the selected project
// rather than the caller's directory.
//
// Returns nil (and no error) when migrafold.yaml does not exist, allowing
// commands that don't require config (like init, help, version) to function.
type Loader func() (*Config, error)

// NewLoader returns a Loader that reads migrafold.yaml from the working
// directory at call time and caches the result.
func NewLoader() Loader {
	var (
		once sync.Once
		cfg  *Config
		err  error
	)
	return func() (*Config, error) {
		once.Do(func() {
			if _, statErr := os.Stat(consts.ConfigFile); os.IsNotExist(statErr) {
				return
			}
			cfg, err = LoadFile(consts.ConfigFile)
		})
		return cfg, err
	}
}

var Module = fx.Module("config", fx.Provide(NewLoader))

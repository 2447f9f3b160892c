package config

import (
	"io"
	"os"
	"strings"

	"github.com/migrafold/migrafold/pkg/consolidator"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/utils"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type (
	// Group assigns objects to a named consolidation group by pattern.
	//
	// Patterns match normalized object names: an exact name, or a prefix
	// match when the pattern ends in "*" (e.g. "billing.*" or "user_*").
	Group struct {
		// Name is the group label, used for the output file name.
		Name string `yaml:"name"`

		// Match lists the object name patterns belonging to this group.
		Match []string `yaml:"match"`
	}

	// Config represents the project configuration for migration analysis
	// and consolidation.
	Config struct {
		// Dir specifies the directory where migration files are stored.
		Dir string `yaml:"dir"`

		// URL is the PostgreSQL connection URL used by apply and status.
		// Usually left empty here and supplied via flag or environment.
		URL string `yaml:"url,omitempty"`

		// Groups define the consolidation group assignment. Objects
		// matching no group fall into the default group. First match
		// wins, in declaration order.
		Groups []Group `yaml:"groups,omitempty"`
	}
)

// Load parses a project configuration from the provided io.Reader. The
// migration directory defaults to "migrations" when unset.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal project config")
	}

	if cfg.Dir == "" {
		cfg.Dir = consts.DefaultMigrationDir
	}

	seen := make(map[string]bool, len(cfg.Groups))
	for _, g := range cfg.Groups {
		if g.Name == "" {
			return nil, errors.New("config group without a name")
		}
		if seen[g.Name] {
			return nil, errors.Errorf("config group %q declared twice", g.Name)
		}
		seen[g.Name] = true
	}

	return &cfg, nil
}

// LoadFile loads a project configuration from the specified file path.
//
// Example:
//
//	cfg, err := config.LoadFile("migrafold.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Migration dir: %s\n", cfg.Dir)
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// Assignment builds the consolidation group assignment from the configured
// groups. Patterns are matched against normalized object names, first match
// wins; unmatched objects map to the default group.
func (c *Config) Assignment() consolidator.Assignment {
	if c == nil || len(c.Groups) == 0 {
		return consolidator.DefaultAssignment
	}

	groups := c.Groups
	return func(object string) string {
		name := utils.NormalizeIdentifier(object)
		for _, g := range groups {
			for _, pattern := range g.Match {
				if matchPattern(pattern, name) {
					return g.Name
				}
			}
		}
		return consts.DefaultGroup
	}
}

// matchPattern matches an object name against an exact or trailing-star
// prefix pattern. Matching is case-insensitive, like the identifiers it
// matches against.
func matchPattern(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

package consolidator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/pkg/errors"
)

type (
	// Plan is the output of a consolidation run: the ordered groups whose
	// concatenated statements replay the original migrations against an
	// empty schema.
	Plan struct {
		// Groups in execution order. Groups earlier in the slice never
		// depend on objects created by later groups.
		Groups []*Group
	}

	// Group is one consolidated output file.
	Group struct {
		// Name is the logical group label, e.g. "core" or "misc".
		Name string

		// Ordinal is the group's 1-based position in the plan.
		Ordinal int

		// Sources lists the original migration files that contributed
		// statements, in replay order.
		Sources []string

		// Statements holds the rewritten SQL statements in execution
		// order, each terminated with a semicolon.
		Statements []string
	}
)

// FileName returns the output file name for the group, e.g. "01_core.sql".
func (g *Group) FileName() string {
	return fmt.Sprintf("%02d_%s.sql", g.Ordinal, g.Name)
}

// Hash returns the hex-encoded SHA256 of the group's statements. Recorded
// in the file header and in the tracking table so apply can skip groups
// whose content has not changed.
func (g *Group) Hash() string {
	h := sha256.New()
	for _, s := range g.Statements {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render returns the complete file content for the group: a directive
// header identifying the group, its source files and content hash, followed
// by the statements.
func (g *Group) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- migrafold:group %s\n", g.Name)
	fmt.Fprintf(&b, "-- migrafold:sources %s\n", strings.Join(g.Sources, ", "))
	fmt.Fprintf(&b, "-- migrafold:hash sha256:%s\n", g.Hash())
	for _, s := range g.Statements {
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// Write writes one file per group into dir, creating it if needed.
// Existing files with the same names are overwritten.
func (p *Plan) Write(dir string) error {
	if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create output directory: %s", dir)
	}

	for _, g := range p.Groups {
		path := filepath.Join(dir, g.FileName())
		if err := os.WriteFile(path, []byte(g.Render()), consts.ModeFile); err != nil {
			return errors.Wrapf(err, "failed to write group file: %s", path)
		}
	}
	return nil
}

// StatementCount returns the total number of statements across all groups.
func (p *Plan) StatementCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Statements)
	}
	return n
}

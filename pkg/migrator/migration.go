// Package migrator loads and models SQL migration files.
//
// Migration files live in a single directory, one file per migration, named
// with a numeric ordinal prefix that establishes replay order (for example
// 01_create_core.sql). Each file is parsed into classified statements by the
// parser package. The package also maintains the migrafold.sum integrity
// ledger and models the revision records kept in the external tracking table.
package migrator

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/parser"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// parseWorkers bounds concurrent file parsing in LoadDir. Parsing is
// per-file with no shared state, so the only constraint is not thrashing on
// tiny files.
const parseWorkers = 4

type (
	// MigrationFile is one parsed migration file. Immutable once loaded.
	MigrationFile struct {
		// Ordinal is the numeric prefix of the file name, establishing
		// replay order across the directory.
		Ordinal int

		// Name is the file name, e.g. "01_create_core.sql".
		Name string

		// Raw is the original file content.
		Raw string

		// Statements holds the parsed statements in file order.
		Statements []*parser.Statement
	}

	// Dir is a fully loaded migration directory.
	Dir struct {
		// Files contains all migration files sorted by ordinal, then
		// name for equal ordinals.
		Files []*MigrationFile

		// SumFile is the integrity ledger computed from the current
		// file contents.
		SumFile *SumFile

		// SumRecorded is true when the directory contained a
		// migrafold.sum file.
		SumRecorded bool

		// SumMismatch is true when a recorded migrafold.sum did not
		// match the current file contents.
		SumMismatch bool
	}
)

var ordinalPattern = regexp.MustCompile(`^(\d+)[_-]`)

// LoadDir loads all .sql migration files from the provided filesystem.
//
// Files are parsed concurrently (parsing is per-file with no cross-file
// state) and recombined in ordinal order before being returned, so the
// result is deterministic regardless of scheduling. A migrafold.sum file,
// when present, is verified against the loaded content; a mismatch is
// recorded on the Dir rather than returned as an error so the validator can
// surface it as a finding.
//
// Example:
//
//	dir, err := migrator.LoadDir(os.DirFS("migrations"))
//	if err != nil {
//		return err
//	}
//	for _, f := range dir.Files {
//		fmt.Printf("%s: %d statements\n", f.Name, len(f.Statements))
//	}
func LoadDir(fsys fs.FS) (*Dir, error) {
	var (
		paths    []string
		recorded *SumFile
	)

	if err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case filepath.Ext(path) == ".sql":
			paths = append(paths, path)
		case filepath.Base(path) == consts.SumFileName:
			f, err := fsys.Open(path)
			if err != nil {
				return errors.Wrapf(err, "failed to open: %s", path)
			}
			defer func() { _ = f.Close() }()

			recorded, err = LoadSumFile(f)
			if err != nil {
				return errors.Wrapf(err, "failed to load sum file: %s", path)
			}
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "failed to walk migration directory")
	}

	files := make([]*MigrationFile, len(paths))

	var g errgroup.Group
	g.SetLimit(parseWorkers)
	for i, path := range paths {
		g.Go(func() error {
			mf, err := loadFile(fsys, path)
			if err != nil {
				return err
			}
			files[i] = mf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Ordinal != files[j].Ordinal {
			return files[i].Ordinal < files[j].Ordinal
		}
		return files[i].Name < files[j].Name
	})

	dir := &Dir{Files: files, SumFile: NewSumFile()}
	for _, f := range files {
		dir.SumFile.AddFile(f.Name, []byte(f.Raw))
	}

	if recorded != nil {
		dir.SumRecorded = true
		dir.SumMismatch = !dir.SumFile.Equal(recorded)
	}

	return dir, nil
}

// loadFile reads and parses a single migration file.
func loadFile(fsys fs.FS, path string) (*MigrationFile, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read migration: %s", path)
	}

	name := filepath.Base(path)
	ordinal, err := fileOrdinal(name)
	if err != nil {
		return nil, err
	}

	return &MigrationFile{
		Ordinal:    ordinal,
		Name:       name,
		Raw:        string(content),
		Statements: parser.ParseString(name, string(content)),
	}, nil
}

// fileOrdinal extracts the numeric ordinal prefix from a migration file
// name, e.g. "03_add_orders.sql" -> 3.
func fileOrdinal(name string) (int, error) {
	m := ordinalPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, errors.Errorf("migration file %q has no numeric ordinal prefix (expected e.g. 01_description.sql)", name)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ordinal prefix in %q", name)
	}
	return n, nil
}

// Version returns the migration identifier: the file name without its
// extension, e.g. "01_create_core".
func (m *MigrationFile) Version() string {
	return strings.TrimSuffix(m.Name, filepath.Ext(m.Name))
}

// AllStatements returns every statement across all files in replay order.
func (d *Dir) AllStatements() []*parser.Statement {
	var statements []*parser.Statement
	for _, f := range d.Files {
		statements = append(statements, f.Statements...)
	}
	return statements
}

// OrdinalOf returns the ordinal of the named file, or -1 when unknown.
// Used to break ordering ties deterministically downstream.
func (d *Dir) OrdinalOf(file string) int {
	for _, f := range d.Files {
		if f.Name == file {
			return f.Ordinal
		}
	}
	return -1
}

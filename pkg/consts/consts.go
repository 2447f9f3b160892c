package consts

import "os"

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ConfigFile is the name of the project configuration file
	ConfigFile = "migrafold.yaml"

	// SumFileName is the name of the migration integrity ledger
	SumFileName = "migrafold.sum"

	// DefaultMigrationDir is used when neither the config file nor the
	// --dir flag specify a migration directory
	DefaultMigrationDir = "migrations"

	// DefaultGroup is the consolidation group for objects that match no
	// configured group and for statements without a target object
	DefaultGroup = "misc"

	// TrackingSchema is the schema holding the revisions tracking table
	TrackingSchema = "migrafold"

	// TrackingTable is the fully qualified revisions tracking table
	TrackingTable = "migrafold.revisions"
)

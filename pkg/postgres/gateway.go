package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/migrafold/migrafold/pkg/consolidator"
	"github.com/migrafold/migrafold/pkg/consts"
	"github.com/migrafold/migrafold/pkg/migrator"
	"github.com/pkg/errors"
)

type (
	// Gateway applies consolidation plans and reads revision history.
	Gateway struct {
		conn        Conn
		toolVersion string
	}

	// GroupResult is the outcome of applying one consolidation group.
	GroupResult struct {
		// Group is the group name.
		Group string

		// Status is the execution outcome.
		Status Status

		// Error holds the statement failure for a failed group.
		Error error

		// ExecutionTime is how long the group's statements took.
		ExecutionTime time.Duration

		// Applied and Total count executed statements against the
		// group's statement count.
		Applied int
		Total   int
	}

	// Summary aggregates the results of one apply run.
	Summary struct {
		Results []*GroupResult
	}

	// SummaryCounts breaks a Summary down by outcome.
	SummaryCounts struct {
		Applied int
		Skipped int
		Failed  int
	}

	// Status is the outcome of a single group.
	Status string
)

const (
	// StatusApplied means the group's transaction committed.
	StatusApplied Status = "applied"

	// StatusSkipped means the group was already applied with a matching
	// content hash.
	StatusSkipped Status = "skipped"

	// StatusFailed means a statement failed and the group rolled back.
	StatusFailed Status = "failed"
)

// bootstrapSQL creates the tracking infrastructure. The table is
// append-only: every apply attempt inserts a row, and status reads the
// latest row per version.
var bootstrapSQL = []string{
	`CREATE SCHEMA IF NOT EXISTS ` + consts.TrackingSchema,
	`CREATE TABLE IF NOT EXISTS ` + consts.TrackingTable + ` (
		version           text NOT NULL,
		executed_at       timestamptz NOT NULL,
		execution_time_ms bigint NOT NULL,
		error             text,
		applied           integer NOT NULL,
		total             integer NOT NULL,
		hash              text NOT NULL,
		tool_version      text NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS revisions_version_idx ON ` + consts.TrackingTable + ` (version, executed_at)`,
}

// New creates a gateway over an open connection. toolVersion is recorded on
// every revision row it writes.
func New(conn Conn, toolVersion string) *Gateway {
	return &Gateway{conn: conn, toolVersion: toolVersion}
}

// Bootstrap creates the tracking schema and revisions table if missing.
// Safe to call repeatedly.
func (g *Gateway) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapSQL {
		if err := g.conn.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to bootstrap tracking table")
		}
	}
	return nil
}

// Apply executes the plan's groups in order, each in its own transaction.
//
// Groups whose version is already recorded with a matching content hash are
// skipped. A recorded version with a different hash is re-applied; every
// statement in a plan carries an existence guard, so re-running one is a
// no-op for objects that already exist. Execution stops at the first failed
// group; earlier groups stay committed and the summary reports exactly how
// far the run got.
//
// The revision row is inserted inside the group's transaction, so a
// cancelled or failed apply never records a group that did not commit.
// Failed attempts are recorded afterwards in their own transaction.
func (g *Gateway) Apply(ctx context.Context, plan *consolidator.Plan) (*Summary, error) {
	if err := g.Bootstrap(ctx); err != nil {
		return nil, err
	}

	revisions, err := g.Status(ctx)
	if err != nil {
		return nil, err
	}
	set := migrator.NewRevisionSet(revisions)

	summary := &Summary{}
	for _, group := range plan.Groups {
		result := g.applyGroup(ctx, group, set)
		summary.Results = append(summary.Results, result)
		if result.Status == StatusFailed {
			break
		}
	}
	return summary, nil
}

func (g *Gateway) applyGroup(ctx context.Context, group *consolidator.Group, set *migrator.RevisionSet) *GroupResult {
	version := strings.TrimSuffix(group.FileName(), ".sql")
	result := &GroupResult{Group: group.Name, Total: len(group.Statements)}

	if applied, hashMatch := set.IsApplied(version, group.Hash()); applied && hashMatch {
		result.Status = StatusSkipped
		result.Applied = len(group.Statements)
		return result
	}

	started := time.Now()
	execErr := g.runGroup(ctx, group, version, started, &result.Applied)
	result.ExecutionTime = time.Since(started)

	if execErr != nil {
		result.Status = StatusFailed
		result.Error = execErr
		g.recordFailure(ctx, group, version, started, result)
		return result
	}

	result.Status = StatusApplied
	return result
}

// runGroup executes the group's statements and the revision insert in a
// single transaction. applied is advanced per successful statement so the
// caller can report partial progress after a rollback.
func (g *Gateway) runGroup(ctx context.Context, group *consolidator.Group, version string, started time.Time, applied *int) error {
	tx, err := g.conn.Begin(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to begin transaction for group %s", group.Name)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range group.Statements {
		if err := tx.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "statement %d of group %s failed", i+1, group.Name)
		}
		*applied++
	}

	if err := g.insertRevision(ctx, tx, &migrator.Revision{
		Version:       version,
		ExecutedAt:    started,
		ExecutionTime: time.Since(started),
		Applied:       *applied,
		Total:         len(group.Statements),
		Hash:          group.Hash(),
		ToolVersion:   g.toolVersion,
	}); err != nil {
		return err
	}

	return errors.Wrapf(tx.Commit(ctx), "failed to commit group %s", group.Name)
}

// recordFailure writes a revision row for a failed group in its own
// transaction. Recording is best effort: the group already rolled back, and
// a failure to record must not mask the original error.
func (g *Gateway) recordFailure(ctx context.Context, group *consolidator.Group, version string, started time.Time, result *GroupResult) {
	msg := result.Error.Error()

	tx, err := g.conn.Begin(ctx)
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := g.insertRevision(ctx, tx, &migrator.Revision{
		Version:       version,
		ExecutedAt:    started,
		ExecutionTime: result.ExecutionTime,
		Error:         &msg,
		Applied:       result.Applied,
		Total:         result.Total,
		Hash:          group.Hash(),
		ToolVersion:   g.toolVersion,
	}); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}

func (g *Gateway) insertRevision(ctx context.Context, tx Tx, r *migrator.Revision) error {
	err := tx.Exec(ctx,
		`INSERT INTO `+consts.TrackingTable+`
			(version, executed_at, execution_time_ms, error, applied, total, hash, tool_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.Version, r.ExecutedAt, r.ExecutionTime.Milliseconds(), r.Error, r.Applied, r.Total, r.Hash, r.ToolVersion)
	return errors.Wrapf(err, "failed to record revision %s", r.Version)
}

// Status reads the full revision history in execution order. When a version
// was attempted more than once, all attempts are returned; RevisionSet
// keeps the latest per version.
func (g *Gateway) Status(ctx context.Context) ([]*migrator.Revision, error) {
	rows, err := g.conn.Query(ctx,
		`SELECT version, executed_at, execution_time_ms, error, applied, total, hash, tool_version
		 FROM `+consts.TrackingTable+`
		 ORDER BY executed_at, version`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to query revisions")
	}
	defer rows.Close()

	var revisions []*migrator.Revision
	for rows.Next() {
		var (
			r  migrator.Revision
			ms int64
		)
		if err := rows.Scan(&r.Version, &r.ExecutedAt, &ms, &r.Error, &r.Applied, &r.Total, &r.Hash, &r.ToolVersion); err != nil {
			return nil, errors.Wrap(err, "failed to scan revision")
		}
		r.ExecutionTime = time.Duration(ms) * time.Millisecond
		revisions = append(revisions, &r)
	}
	return revisions, errors.Wrap(rows.Err(), "failed to read revisions")
}

// Counts tallies the results by outcome.
func (s *Summary) Counts() SummaryCounts {
	var c SummaryCounts
	for _, r := range s.Results {
		switch r.Status {
		case StatusApplied:
			c.Applied++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Failed returns the failed group result, or nil when the run succeeded.
func (s *Summary) Failed() *GroupResult {
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			return r
		}
	}
	return nil
}

// isUndefinedTable matches the undefined_table error class so status on a
// never-bootstrapped database reports an empty history instead of failing.
func isUndefinedTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "42P01")
}

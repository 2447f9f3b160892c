package migrator

import (
	"time"
)

type (
	// Revision is one record from the external tracking table: a single
	// applied (or failed) migration group. The tracking table is owned by
	// the database and read through the gateway; this package never caches
	// revision state across calls.
	Revision struct {
		// Version identifies the applied group, e.g. "01_core".
		Version string

		// ExecutedAt is when execution began.
		ExecutedAt time.Time

		// ExecutionTime is the total statement execution duration.
		ExecutionTime time.Duration

		// Error holds the failure message for a failed group. Nil means
		// the group committed.
		Error *string

		// Applied and Total count successfully executed statements
		// against the group's statement count.
		Applied int
		Total   int

		// Hash is the content checksum of the applied group, used to
		// skip already-applied groups and to detect content drift.
		Hash string

		// ToolVersion records the migrafold version that applied the
		// group.
		ToolVersion string
	}

	// RevisionSet indexes revisions by version for status queries.
	RevisionSet struct {
		revisions map[string]*Revision
		order     []string
	}
)

// NewRevisionSet builds a RevisionSet preserving the given order.
func NewRevisionSet(revisions []*Revision) *RevisionSet {
	set := &RevisionSet{revisions: make(map[string]*Revision, len(revisions))}
	for _, r := range revisions {
		if _, ok := set.revisions[r.Version]; !ok {
			set.order = append(set.order, r.Version)
		}
		set.revisions[r.Version] = r
	}
	return set
}

// Get returns the revision for a version, or nil when not recorded.
func (s *RevisionSet) Get(version string) *Revision {
	return s.revisions[version]
}

// Len returns the number of recorded revisions.
func (s *RevisionSet) Len() int {
	return len(s.order)
}

// Completed returns all successfully applied revisions in recorded order.
func (s *RevisionSet) Completed() []*Revision {
	var out []*Revision
	for _, v := range s.order {
		if r := s.revisions[v]; r.Error == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns all failed revisions in recorded order.
func (s *RevisionSet) Failed() []*Revision {
	var out []*Revision
	for _, v := range s.order {
		if r := s.revisions[v]; r.Error != nil {
			out = append(out, r)
		}
	}
	return out
}

// IsApplied reports whether a version committed successfully with the given
// content hash. The second return distinguishes "applied with different
// content" from "not applied".
func (s *RevisionSet) IsApplied(version, hash string) (applied, hashMatch bool) {
	r := s.revisions[version]
	if r == nil || r.Error != nil {
		return false, false
	}
	return true, r.Hash == hash
}

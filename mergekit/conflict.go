package mergekit

import (
	"fmt"

	"github.com/Havanyani/go-merge-kit/record"
)

// ConflictCase carries everything needed to resolve one detected conflict
// between a local and a remote snapshot of the same entity. It is immutable
// once built and constructed fresh per sync cycle; any ancestor lookup or
// remote fetch must complete before construction.
type ConflictCase struct {
	ID         string // entity identifier
	EntityType string // selects the ResolutionConfig

	// Local and Remote are the two snapshots. A nil record means the side
	// deleted the entity; an empty record is a present entity with no fields.
	Local  record.Record
	Remote record.Record

	// Modification times in epoch milliseconds, as reported by the sync
	// bookkeeping on each side.
	LocalTimestamp  int64
	RemoteTimestamp int64

	// Monotonic versions from the sync queue and the server. Zero means
	// unknown; they only feed the version bump of merged records.
	LocalVersion  int64
	RemoteVersion int64

	// Ancestor is the last record both sides agreed on, when local
	// persistence still has it. Nil enables only two-way merging.
	Ancestor record.Record

	// Metadata is opaque to the engine and carried into the audit trail
	// (origin node, device tags, ...).
	Metadata map[string]any
}

// ConflictCategory classifies a conflict by the presence of the two sides.
// Derived by Classify, never stored.
type ConflictCategory int

const (
	CategoryBothDeleted ConflictCategory = iota
	CategoryLocalDeletedRemoteModified
	CategoryRemoteDeletedLocalModified
	CategoryBothModified
)

func (c ConflictCategory) String() string {
	switch c {
	case CategoryBothDeleted:
		return "both_deleted"
	case CategoryLocalDeletedRemoteModified:
		return "local_deleted_remote_modified"
	case CategoryRemoteDeletedLocalModified:
		return "remote_deleted_local_modified"
	case CategoryBothModified:
		return "both_modified"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler using the canonical name.
func (c ConflictCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Classify assigns a conflict category from the presence of the two sides
// alone. It never inspects field contents; it only gates which resolution
// path runs.
func Classify(local, remote record.Record) ConflictCategory {
	switch {
	case local == nil && remote == nil:
		return CategoryBothDeleted
	case local == nil:
		return CategoryLocalDeletedRemoteModified
	case remote == nil:
		return CategoryRemoteDeletedLocalModified
	default:
		return CategoryBothModified
	}
}

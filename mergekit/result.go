package mergekit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Havanyani/go-merge-kit/record"
)

// FieldConflict describes one field the two sides disagreed on. The value
// pointers are nil when the corresponding side does not carry the field;
// ResolvedValue stays nil under the Manual strategy, where the decision is
// left to a human.
type FieldConflict struct {
	Field         string        `json:"field"`
	LocalValue    *record.Value `json:"local_value,omitempty"`
	RemoteValue   *record.Value `json:"remote_value,omitempty"`
	ResolvedValue *record.Value `json:"resolved_value,omitempty"`
}

// ResolutionResult is the ephemeral outcome of resolving one ConflictCase.
// Resolved is false only under the Manual strategy or after an internal
// fallback; callers must never persist a result where Resolved is false.
type ResolutionResult struct {
	Resolved bool `json:"resolved"`

	// ResolvedRecord is the reconciled record to persist. Nil when the
	// resolution is a delete or still needs a human.
	ResolvedRecord record.Record `json:"resolved_record,omitempty"`

	// ShouldDelete tells the sync queue to delete the entity instead of
	// persisting a record.
	ShouldDelete bool `json:"should_delete"`

	StrategyUsed Strategy         `json:"strategy_used"`
	Category     ConflictCategory `json:"category"`

	// PerFieldStrategyUsed records, per conflicting field, which field
	// strategy produced its resolved value. Populated only by the merging
	// strategies.
	PerFieldStrategyUsed map[string]FieldStrategyKind `json:"per_field_strategy_used,omitempty"`

	// ConflictDetails lists the fields the two sides truly disagreed on,
	// sorted by field name, for the audit trail and the manual-resolution
	// presentation layer.
	ConflictDetails []FieldConflict `json:"conflict_details,omitempty"`

	// NeedsManualResolution signals that the hosting application must block
	// automatic persistence of this entity until a human decides.
	NeedsManualResolution bool `json:"needs_manual_resolution"`

	// Reasons are short human-readable annotations for audit and telemetry.
	Reasons []string `json:"reasons,omitempty"`
}

// Decision returns a compact label for the outcome, used by the audit trail.
func (r ResolutionResult) Decision() string {
	switch {
	case r.NeedsManualResolution:
		return "manual_review"
	case r.ShouldDelete:
		return "delete"
	case r.StrategyUsed == StrategyLocalWins:
		return "keep_local"
	case r.StrategyUsed == StrategyRemoteWins:
		return "keep_remote"
	case r.StrategyUsed == StrategyLatestWins:
		return "keep_latest"
	default:
		return "merge"
	}
}

// Explain renders a deterministic, human-readable account of the resolution
// for logs and the manual-resolution presentation layer. Fields appear in
// sorted order; the output is stable for identical results.
func (r ResolutionResult) Explain() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "category: %s\n", r.Category)
	fmt.Fprintf(&sb, "strategy: %s\n", r.StrategyUsed)
	fmt.Fprintf(&sb, "decision: %s\n", r.Decision())
	fmt.Fprintf(&sb, "resolved: %t\n", r.Resolved)
	if r.ShouldDelete {
		sb.WriteString("should_delete: true\n")
	}
	if r.NeedsManualResolution {
		sb.WriteString("needs_manual_resolution: true\n")
	}

	if len(r.ConflictDetails) > 0 {
		sb.WriteString("conflicting fields:\n")
		for _, fc := range r.ConflictDetails {
			fmt.Fprintf(&sb, "  %s: local=%s remote=%s", fc.Field, formatValue(fc.LocalValue), formatValue(fc.RemoteValue))
			if kind, ok := r.PerFieldStrategyUsed[fc.Field]; ok {
				fmt.Fprintf(&sb, " [%s]", kind)
			}
			if fc.ResolvedValue != nil {
				fmt.Fprintf(&sb, " -> %s", fc.ResolvedValue.String())
			}
			sb.WriteString("\n")
		}
	}

	if r.ResolvedRecord != nil {
		sb.WriteString("resolved record:\n")
		for _, name := range r.ResolvedRecord.Fields() {
			fmt.Fprintf(&sb, "  %s: %s\n", name, r.ResolvedRecord[name].String())
		}
	}

	for _, reason := range r.Reasons {
		fmt.Fprintf(&sb, "reason: %s\n", reason)
	}

	return sb.String()
}

func formatValue(v *record.Value) string {
	if v == nil {
		return "(absent)"
	}
	return v.String()
}

// sortDetails orders conflict details by field name in place.
func sortDetails(details []FieldConflict) {
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
}

// valuePtr adapts a present field value to the FieldConflict pointer form.
func valuePtr(v record.Value) *record.Value { return &v }

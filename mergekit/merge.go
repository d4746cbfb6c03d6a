package mergekit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Havanyani/go-merge-kit/diff"
	"github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/record"
)

// mergeOutcome aggregates what one merge pass produced: the merged record,
// the per-field decisions, and any side-channel errors the pass degraded
// around. Merge passes never fail outright.
type mergeOutcome struct {
	merged   record.Record
	perField map[string]FieldStrategyKind
	details  []FieldConflict
	reasons  []string
	errs     []error
}

func newMergeOutcome() *mergeOutcome {
	return &mergeOutcome{
		merged:   make(record.Record),
		perField: make(map[string]FieldStrategyKind),
	}
}

// mergeTwoWay merges local into a remote-seeded base without an ancestor.
// Fields only the local side carries are copied over; fields changed on both
// sides go through their field strategy, defaulting to remote wins.
func mergeTwoWay(c ConflictCase, cfg ResolutionConfig) *mergeOutcome {
	out := newMergeOutcome()

	d, err := diff.Fields(c.Local, c.Remote)
	if err != nil {
		// Undecidable fields were already counted as changed; keep going.
		out.errs = append(out.errs, err)
	}

	seedFromRemote(out.merged, c.Remote)
	for name, v := range c.Local {
		if _, ok := out.merged[name]; !ok {
			out.merged[name] = v
		}
	}

	for _, name := range d.ChangedInBoth {
		if bookkeepingField(cfg, name) {
			continue
		}
		out.resolveConflictField(c, cfg, name, c.Local[name], c.Remote[name])
	}

	return out
}

// mergeThreeWay merges against the common ancestor. Fields changed from the
// ancestor on exactly one side are taken from that side without conflict;
// fields both sides moved to the same value converge silently. Only fields
// both sides moved to different values are true conflicts, which is strictly
// fewer than the two-way diff reports.
func mergeThreeWay(c ConflictCase, cfg ResolutionConfig) *mergeOutcome {
	out := newMergeOutcome()

	localChanges, err := changesFrom(c.Ancestor, c.Local)
	if err != nil {
		out.errs = append(out.errs, err)
	}
	remoteChanges, err := changesFrom(c.Ancestor, c.Remote)
	if err != nil {
		out.errs = append(out.errs, err)
	}

	seedFromRemote(out.merged, c.Remote)
	// Local private metadata rides along; regular local fields are placed by
	// the change walk below so a remote-side removal stays honored.
	for name, v := range c.Local {
		if _, ok := out.merged[name]; ok {
			continue
		}
		if reservedField(name) {
			out.merged[name] = v
		}
	}

	for _, name := range changedFieldNames(localChanges, remoteChanges) {
		if bookkeepingField(cfg, name) {
			continue
		}
		lch := localChanges[name]
		rch := remoteChanges[name]

		switch {
		case lch == changeNone:
			// Only remote moved the field; the base already reflects it.

		case rch == changeNone:
			// Only local moved the field; its state wins without conflict.
			if lch == changeRemoved {
				delete(out.merged, name)
			} else {
				out.merged[name] = c.Local[name]
			}

		default:
			out.resolveDivergence(c, cfg, name)
		}
	}

	return out
}

// resolveDivergence handles one field both sides moved away from the ancestor.
func (out *mergeOutcome) resolveDivergence(c ConflictCase, cfg ResolutionConfig, name string) {
	lv, lok := c.Local[name]
	rv, rok := c.Remote[name]

	switch {
	case !lok && !rok:
		// Both sides removed it; the removal converged.
		delete(out.merged, name)

	case lok && rok:
		eq, err := record.Equal(lv, rv)
		if err != nil {
			cmpErr := errors.NewComparisonError(errors.OpDiff, err)
			cmpErr.Metadata = map[string]interface{}{"field": name, "entity_type": c.EntityType}
			out.errs = append(out.errs, cmpErr)
			eq = false
		}
		if eq {
			// Both sides converged on the same value; not a conflict.
			out.merged[name] = rv
			return
		}
		out.resolveConflictField(c, cfg, name, lv, rv)

	default:
		// Removed on one side, changed on the other. Resolved by side
		// selection and annotated, but not reported as a conflict: the
		// two-way diff would not list it either.
		out.resolveDeleteEdit(c, cfg, name, lv, lok, rv)
	}
}

// resolveConflictField merges one field both sides changed to different
// values and records the decision. Array-typed fields without an explicit
// field strategy go through the configured array policy instead of the
// remote-wins default.
func (out *mergeOutcome) resolveConflictField(c ConflictCase, cfg ResolutionConfig, name string, lv, rv record.Value) {
	fs, explicit := cfg.fieldStrategyFor(name)

	if !explicit && cfg.ArrayStrategy != ArrayReplace {
		la, lok := lv.AsArray()
		ra, rok := rv.AsArray()
		if lok && rok {
			merged := record.Array(mergeArrays(cfg.ArrayStrategy, la, ra)...)
			out.merged[name] = merged
			out.details = append(out.details, FieldConflict{
				Field:         name,
				LocalValue:    valuePtr(lv),
				RemoteValue:   valuePtr(rv),
				ResolvedValue: valuePtr(merged),
			})
			out.reasons = append(out.reasons, fmt.Sprintf("field %q merged with %s array policy", name, cfg.ArrayStrategy))
			return
		}
	}

	v, used, err := resolveField(fs, lv, rv, mergeContextFor(c, name))
	if err != nil {
		out.errs = append(out.errs, err)
	}
	out.merged[name] = v
	out.perField[name] = used
	out.details = append(out.details, FieldConflict{
		Field:         name,
		LocalValue:    valuePtr(lv),
		RemoteValue:   valuePtr(rv),
		ResolvedValue: valuePtr(v),
	})
}

// resolveDeleteEdit decides a field removed on one side and changed on the
// other. Side-selection strategies keep their semantics, honoring the
// removal when their side removed it; value-combining strategies keep the
// surviving value, preferring retention over loss.
func (out *mergeOutcome) resolveDeleteEdit(c ConflictCase, cfg ResolutionConfig, name string, lv record.Value, localHas bool, rv record.Value) {
	fs, _ := cfg.fieldStrategyFor(name)

	var keepLocalState bool
	switch fs.Kind {
	case FieldLocalWins:
		keepLocalState = true
	case FieldRemoteWins:
		keepLocalState = false
	case FieldLatestWins:
		keepLocalState = c.LocalTimestamp > c.RemoteTimestamp
	default:
		// Concatenate, NumericAdd and Custom need two values; keep the side
		// that still has one.
		keepLocalState = localHas
	}

	removedOn, changedOn := "local", "remote"
	if localHas {
		removedOn, changedOn = "remote", "local"
	}

	if keepLocalState {
		if localHas {
			out.merged[name] = lv
		} else {
			delete(out.merged, name)
		}
	} else {
		if localHas {
			delete(out.merged, name)
		} else {
			out.merged[name] = rv
		}
	}

	kept := "the removal"
	if _, ok := out.merged[name]; ok {
		kept = fmt.Sprintf("the %s value", changedOn)
	}
	out.reasons = append(out.reasons, fmt.Sprintf("field %q removed on %s, changed on %s; kept %s", name, removedOn, changedOn, kept))
}

// sideChange classifies how one side moved a field away from the ancestor.
type sideChange int

const (
	changeNone sideChange = iota
	changeAdded
	changeRemoved
	changeModified
)

// changesFrom diffs a side against the ancestor. diff.Fields is positional,
// so its first-argument-only set holds fields the side removed and its
// second-argument-only set holds fields the side added.
func changesFrom(ancestor, side record.Record, opts ...diff.Option) (map[string]sideChange, error) {
	d, err := diff.Fields(ancestor, side, opts...)
	changes := make(map[string]sideChange, len(d.OnlyInLocal)+len(d.OnlyInRemote)+len(d.ChangedInBoth))
	for _, f := range d.OnlyInLocal {
		changes[f] = changeRemoved
	}
	for _, f := range d.OnlyInRemote {
		changes[f] = changeAdded
	}
	for _, f := range d.ChangedInBoth {
		changes[f] = changeModified
	}
	return changes, err
}

// changedFieldNames returns the sorted union of fields either side moved.
func changedFieldNames(local, remote map[string]sideChange) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	names := make([]string, 0, len(local)+len(remote))
	for f := range local {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			names = append(names, f)
		}
	}
	for f := range remote {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return names
}

// mergeContextFor builds the policy context for one field.
func mergeContextFor(c ConflictCase, field string) MergeContext {
	mctx := MergeContext{
		Field:           field,
		EntityType:      c.EntityType,
		LocalTimestamp:  c.LocalTimestamp,
		RemoteTimestamp: c.RemoteTimestamp,
	}
	if c.Ancestor != nil {
		mctx.AncestorPresent = true
		if av, ok := c.Ancestor[field]; ok {
			mctx.AncestorHasField = true
			mctx.AncestorValue = av
		}
	}
	return mctx
}

func seedFromRemote(merged, remote record.Record) {
	for name, v := range remote {
		merged[name] = v
	}
}

// reservedField reports whether a field is sync bookkeeping excluded from
// diffing: the id plus underscore-prefixed private metadata.
func reservedField(name string) bool {
	return name == diff.IDField || strings.HasPrefix(name, diff.ReservedPrefix)
}

// bookkeepingField reports whether a field is managed by the version bump or
// timestamp stamp rather than by field strategies.
func bookkeepingField(cfg ResolutionConfig, name string) bool {
	if cfg.VersionField != "" && name == cfg.VersionField {
		return true
	}
	if cfg.TimestampField != "" && name == cfg.TimestampField {
		return true
	}
	return false
}

// bumpVersion writes the configured version field as one past the highest
// version either record carries. When neither record carries the field, the
// case's sync-queue versions seed the maximum.
func bumpVersion(merged record.Record, c ConflictCase, field string) {
	if field == "" {
		return
	}
	var best float64
	found := false
	if v, ok := c.Local[field]; ok {
		if n, nok := v.AsNumber(); nok {
			best = n
			found = true
		}
	}
	if v, ok := c.Remote[field]; ok {
		if n, nok := v.AsNumber(); nok && (!found || n > best) {
			best = n
			found = true
		}
	}
	if !found {
		best = float64(c.LocalVersion)
		if rv := float64(c.RemoteVersion); rv > best {
			best = rv
		}
	}
	merged[field] = record.Number(best + 1)
}

// stampTimestamp writes the configured timestamp field in epoch milliseconds.
func stampTimestamp(merged record.Record, field string, nowMillis int64) {
	if field == "" {
		return
	}
	merged[field] = record.Int(nowMillis)
}

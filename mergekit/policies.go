package mergekit

import (
	"fmt"

	"github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/record"
)

// MergeContext carries the per-field context a merge policy may consult:
// the modification timestamps of the two sides and the ancestor value for
// the field, when a common ancestor was available.
type MergeContext struct {
	Field      string
	EntityType string

	LocalTimestamp  int64 // epoch ms
	RemoteTimestamp int64 // epoch ms

	// AncestorPresent reports whether the conflict case carried a common
	// ancestor record at all; AncestorHasField whether that ancestor carried
	// this field. AncestorValue is meaningful only when AncestorHasField.
	AncestorPresent  bool
	AncestorHasField bool
	AncestorValue    record.Value
}

// FieldMerger combines a locally and a remotely modified value for one field.
// Implementations must be pure, synchronous and non-blocking; the engine
// treats the result opaquely and does not validate it.
type FieldMerger interface {
	MergeField(local, remote record.Value, mctx MergeContext) (record.Value, error)
}

// FieldMergerFunc adapts a plain function to the FieldMerger interface.
type FieldMergerFunc func(local, remote record.Value, mctx MergeContext) (record.Value, error)

func (f FieldMergerFunc) MergeField(local, remote record.Value, mctx MergeContext) (record.Value, error) {
	return f(local, remote, mctx)
}

// fieldPolicyFn is one built-in merge policy. It returns the merged value,
// the strategy kind that actually decided it (the configured kind, or
// FieldRemoteWins after a documented fallback), and a side-channel error
// when the policy could not run as configured. The returned value is always
// usable: policies degrade, they never abort.
type fieldPolicyFn func(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error)

// fieldPolicies dispatches a field strategy kind to its policy.
var fieldPolicies = map[FieldStrategyKind]fieldPolicyFn{
	FieldRemoteWins:  mergeFieldRemoteWins,
	FieldLocalWins:   mergeFieldLocalWins,
	FieldLatestWins:  mergeFieldLatestWins,
	FieldConcatenate: mergeFieldConcatenate,
	FieldNumericAdd:  mergeFieldNumericAdd,
	FieldCustom:      mergeFieldCustom,
}

// resolveField applies the configured field strategy to one conflicting
// field. Unknown kinds degrade to the remote value with a configuration
// error on the side channel.
func resolveField(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	policy, ok := fieldPolicies[fs.Kind]
	if !ok {
		err := errors.NewConfigurationError(errors.OpMergeField,
			fmt.Errorf("no merge policy for field strategy %s", fs.Kind))
		err.Metadata = map[string]interface{}{"field": mctx.Field, "entity_type": mctx.EntityType}
		return remote, FieldRemoteWins, err
	}
	return policy(fs, local, remote, mctx)
}

func mergeFieldRemoteWins(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	return remote, FieldRemoteWins, nil
}

func mergeFieldLocalWins(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	return local, FieldLocalWins, nil
}

// mergeFieldLatestWins picks the side with the strictly greater timestamp.
// Ties favor remote, consistent with the whole-record LatestWins strategy.
func mergeFieldLatestWins(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	if mctx.LocalTimestamp > mctx.RemoteTimestamp {
		return local, FieldLatestWins, nil
	}
	return remote, FieldLatestWins, nil
}

// mergeFieldConcatenate joins two string values as remote + separator + local,
// so concatenated notes read newest to oldest. Non-string inputs fall back to
// the remote value; that is documented behavior, not a failure.
func mergeFieldConcatenate(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	ls, lok := local.AsString()
	rs, rok := remote.AsString()
	if !lok || !rok {
		return remote, FieldRemoteWins, nil
	}
	sep := fs.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	return record.String(rs + sep + ls), FieldConcatenate, nil
}

// mergeFieldNumericAdd reconstructs each side's delta from the ancestor value
// and returns ancestor + localDelta + remoteDelta. Without an ancestor record
// it degrades to the remote value, a documented limitation. Non-numeric
// operands fall back to remote with a comparison error on the side channel.
func mergeFieldNumericAdd(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	if !mctx.AncestorPresent {
		return remote, FieldNumericAdd, nil
	}
	l, lok := local.AsNumber()
	r, rok := remote.AsNumber()
	if !lok || !rok {
		err := errors.NewComparisonError(errors.OpMergeField,
			fmt.Errorf("numeric_add needs numbers, got %s and %s", local.Kind(), remote.Kind()))
		err.Metadata = map[string]interface{}{"field": mctx.Field, "entity_type": mctx.EntityType}
		return remote, FieldRemoteWins, err
	}
	// Ancestor value defaults to 0 when the field is absent or non-numeric.
	base := 0.0
	if mctx.AncestorHasField {
		if a, ok := mctx.AncestorValue.AsNumber(); ok {
			base = a
		}
	}
	return record.Number(base + (l - base) + (r - base)), FieldNumericAdd, nil
}

// mergeFieldCustom delegates to the caller-supplied merger. A custom strategy
// without a merger is a configuration gap: the field takes the remote value
// and the error goes to the side channel.
func mergeFieldCustom(fs FieldStrategy, local, remote record.Value, mctx MergeContext) (record.Value, FieldStrategyKind, error) {
	if fs.Merger == nil {
		err := errors.NewConfigurationError(errors.OpMergeField,
			fmt.Errorf("custom field strategy without a merger"))
		err.Metadata = map[string]interface{}{"field": mctx.Field, "entity_type": mctx.EntityType}
		return remote, FieldRemoteWins, err
	}
	merged, mergeErr := fs.Merger.MergeField(local, remote, mctx)
	if mergeErr != nil {
		err := errors.NewInternalError(errors.OpMergeField,
			fmt.Errorf("custom merger failed: %w", mergeErr))
		err.Metadata = map[string]interface{}{"field": mctx.Field, "entity_type": mctx.EntityType}
		return remote, FieldRemoteWins, err
	}
	return merged, FieldCustom, nil
}

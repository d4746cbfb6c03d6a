// Package diff computes field-level differences between two records.
// Comparison stops at top-level fields: divergence inside a nested record
// or array is reported at the containing field's granularity, never
// recursively. Field sets are returned sorted so downstream decisions and
// rendered output are deterministic.
package diff

import (
	"fmt"
	"sort"
	"strings"

	mergeerrors "github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/record"
)

// ReservedPrefix marks private sync-metadata fields (dirty flags, local
// ids) that never participate in diffing.
const ReservedPrefix = "_"

// IDField is the entity identifier field, excluded from diffing because
// both sides of a conflict describe the same entity by construction.
const IDField = "id"

// FieldDiff partitions the union of two records' field names into four
// disjoint sets. Every considered field name appears in exactly one set;
// all sets are sorted.
type FieldDiff struct {
	OnlyInLocal   []string
	OnlyInRemote  []string
	ChangedInBoth []string
	Identical     []string
}

// HasChanges reports whether any field differs between the two records.
func (d FieldDiff) HasChanges() bool {
	return len(d.OnlyInLocal) > 0 || len(d.OnlyInRemote) > 0 || len(d.ChangedInBoth) > 0
}

type options struct {
	ignored map[string]struct{}
}

// Option configures a diff computation.
type Option interface{ apply(*options) }

type optionFn func(*options)

func (f optionFn) apply(o *options) { f(o) }

// WithIgnoredFields excludes additional field names from the diff, on top
// of the identifier field and reserved-prefix fields.
func WithIgnoredFields(names ...string) Option {
	return optionFn(func(o *options) {
		for _, name := range names {
			o.ignored[name] = struct{}{}
		}
	})
}

// Fields computes the field-level difference between a local and a remote
// record. Either record may be nil (absent); its fields simply appear on
// the other side. Values that cannot be deep-compared are classified as
// changed, and a single comparison error naming the affected fields is
// returned alongside the still-valid FieldDiff.
func Fields(local, remote record.Record, opts ...Option) (FieldDiff, error) {
	cfg := &options{ignored: make(map[string]struct{})}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	names := make(map[string]struct{}, len(local)+len(remote))
	for name := range local {
		names[name] = struct{}{}
	}
	for name := range remote {
		names[name] = struct{}{}
	}

	var d FieldDiff
	var failed []string

	for name := range names {
		if excluded(name, cfg.ignored) {
			continue
		}
		lv, inLocal := local[name]
		rv, inRemote := remote[name]
		switch {
		case inLocal && !inRemote:
			d.OnlyInLocal = append(d.OnlyInLocal, name)
		case !inLocal && inRemote:
			d.OnlyInRemote = append(d.OnlyInRemote, name)
		default:
			eq, err := record.Equal(lv, rv)
			if err != nil {
				// Undecidable comparisons count as changed so the
				// resolution still covers the field.
				failed = append(failed, name)
				d.ChangedInBoth = append(d.ChangedInBoth, name)
				continue
			}
			if eq {
				d.Identical = append(d.Identical, name)
			} else {
				d.ChangedInBoth = append(d.ChangedInBoth, name)
			}
		}
	}

	sort.Strings(d.OnlyInLocal)
	sort.Strings(d.OnlyInRemote)
	sort.Strings(d.ChangedInBoth)
	sort.Strings(d.Identical)

	if len(failed) > 0 {
		sort.Strings(failed)
		err := mergeerrors.NewComparisonError(mergeerrors.OpDiff,
			fmt.Errorf("%d field(s) could not be deep-compared: %s", len(failed), strings.Join(failed, ", ")))
		err.Metadata = map[string]interface{}{"fields": failed}
		return d, err
	}
	return d, nil
}

func excluded(name string, ignored map[string]struct{}) bool {
	if name == IDField || strings.HasPrefix(name, ReservedPrefix) {
		return true
	}
	_, ok := ignored[name]
	return ok
}

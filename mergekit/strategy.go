package mergekit

import (
	"fmt"
	"strings"
)

// Strategy selects how a whole record is resolved when both sides modified it.
// The zero value is StrategyRemoteWins, which is also the registry default for
// unregistered entity types.
type Strategy int

const (
	StrategyRemoteWins Strategy = iota
	StrategyLocalWins
	StrategyLatestWins
	StrategyMerge
	StrategySmartMerge
	StrategyManual
)

func (s Strategy) String() string {
	switch s {
	case StrategyRemoteWins:
		return "remote_wins"
	case StrategyLocalWins:
		return "local_wins"
	case StrategyLatestWins:
		return "latest_wins"
	case StrategyMerge:
		return "merge"
	case StrategySmartMerge:
		return "smart_merge"
	case StrategyManual:
		return "manual"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler using the canonical name.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler, accepting aliases.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy maps a configuration name to a Strategy. Accepted aliases
// mirror the names commonly used in sync configs ("server", "lww",
// "three_way", ...).
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "remote_wins", "remote", "server":
		return StrategyRemoteWins, nil
	case "local_wins", "local", "client":
		return StrategyLocalWins, nil
	case "latest_wins", "lww", "last_write_wins":
		return StrategyLatestWins, nil
	case "merge", "two_way":
		return StrategyMerge, nil
	case "smart_merge", "smart", "three_way":
		return StrategySmartMerge, nil
	case "manual", "manual_review":
		return StrategyManual, nil
	default:
		return StrategyRemoteWins, fmt.Errorf("unknown resolution strategy: %s", name)
	}
}

// FieldStrategyKind selects how a single conflicting field is merged under the
// Merge and SmartMerge strategies. The zero value is FieldRemoteWins, the
// default for fields without an explicit strategy.
type FieldStrategyKind int

const (
	FieldRemoteWins FieldStrategyKind = iota
	FieldLocalWins
	FieldLatestWins
	FieldConcatenate
	FieldNumericAdd
	FieldCustom
)

func (k FieldStrategyKind) String() string {
	switch k {
	case FieldRemoteWins:
		return "remote_wins"
	case FieldLocalWins:
		return "local_wins"
	case FieldLatestWins:
		return "latest_wins"
	case FieldConcatenate:
		return "concatenate"
	case FieldNumericAdd:
		return "numeric_add"
	case FieldCustom:
		return "custom"
	default:
		return fmt.Sprintf("field_strategy(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler using the canonical name.
func (k FieldStrategyKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler, accepting aliases.
func (k *FieldStrategyKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldStrategy(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseFieldStrategy maps a configuration name to a FieldStrategyKind.
func ParseFieldStrategy(name string) (FieldStrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "remote_wins", "remote", "server":
		return FieldRemoteWins, nil
	case "local_wins", "local", "client":
		return FieldLocalWins, nil
	case "latest_wins", "lww", "last_write_wins":
		return FieldLatestWins, nil
	case "concatenate", "concat":
		return FieldConcatenate, nil
	case "numeric_add", "counter", "additive":
		return FieldNumericAdd, nil
	case "custom":
		return FieldCustom, nil
	default:
		return FieldRemoteWins, fmt.Errorf("unknown field strategy: %s", name)
	}
}

// ArrayMergePolicy selects how array-typed fields that diverged on both sides
// are combined. The zero value is ArrayReplace: the array is treated as an
// ordinary field under the active field strategy.
type ArrayMergePolicy int

const (
	ArrayReplace ArrayMergePolicy = iota
	ArrayConcat
	ArrayUnion
	ArrayIntersection
)

func (p ArrayMergePolicy) String() string {
	switch p {
	case ArrayReplace:
		return "replace"
	case ArrayConcat:
		return "concat"
	case ArrayUnion:
		return "union"
	case ArrayIntersection:
		return "intersection"
	default:
		return fmt.Sprintf("array_policy(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler using the canonical name.
func (p ArrayMergePolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler, accepting aliases.
func (p *ArrayMergePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseArrayPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseArrayPolicy maps a configuration name to an ArrayMergePolicy.
func ParseArrayPolicy(name string) (ArrayMergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "replace", "":
		return ArrayReplace, nil
	case "concat", "append":
		return ArrayConcat, nil
	case "union":
		return ArrayUnion, nil
	case "intersection", "intersect":
		return ArrayIntersection, nil
	default:
		return ArrayReplace, fmt.Errorf("unknown array merge policy: %s", name)
	}
}

// FieldStrategy configures the merge behavior of a single field.
type FieldStrategy struct {
	Kind FieldStrategyKind

	// Merger is required when Kind is FieldCustom. It must be pure,
	// synchronous and non-blocking; a non-deterministic merger makes the
	// whole resolution non-deterministic.
	Merger FieldMerger

	// Separator overrides the string placed between the remote and local
	// values under FieldConcatenate. Empty means DefaultSeparator.
	Separator string
}

// DefaultSeparator joins concatenated string fields, remote half first.
const DefaultSeparator = " | "

// ResolutionConfig is the per-entity-type resolution configuration held by a
// Registry. The zero value is the documented default: remote wins, no field
// strategies, arrays replaced wholesale.
type ResolutionConfig struct {
	// DefaultStrategy resolves the whole record when both sides modified it,
	// and decides the delete-versus-resurrect question when the remote side
	// deleted a record the local side modified.
	DefaultStrategy Strategy

	// FieldStrategies overrides the merge behavior of individual fields under
	// Merge and SmartMerge. Unlisted fields default to remote wins.
	FieldStrategies map[string]FieldStrategy

	// VersionField, when set, names a numeric field bumped to
	// max(local, remote)+1 on every merged record.
	VersionField string

	// TimestampField, when set, names a field stamped with the resolution
	// time in epoch milliseconds on every merged record.
	TimestampField string

	// ArrayStrategy combines array-typed fields that diverged on both sides
	// and carry no explicit field strategy.
	ArrayStrategy ArrayMergePolicy
}

// fieldStrategyFor returns the configured strategy for a field, or the
// remote-wins default.
func (c ResolutionConfig) fieldStrategyFor(field string) (FieldStrategy, bool) {
	fs, ok := c.FieldStrategies[field]
	return fs, ok
}

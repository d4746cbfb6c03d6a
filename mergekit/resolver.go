package mergekit

import (
	"context"
	"fmt"
	"time"

	"github.com/Havanyani/go-merge-kit/diff"
	"github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/record"
)

// ConflictResolver is the Strategy interface for conflict resolution.
// Resolve is total: implementations return a usable result for every
// well-formed case instead of raising.
type ConflictResolver interface {
	Resolve(ctx context.Context, c ConflictCase) ResolutionResult
}

// Logger is the minimal logging surface the engine needs. Both *slog.Logger
// and the logging package's Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Hooks provides optional callbacks for observability around resolution.
// All hooks are optional; nil functions are safe no-ops.
type Hooks struct {
	OnClassified func(c ConflictCase, category ConflictCategory)
	OnResolved   func(c ConflictCase, result ResolutionResult)
	OnFallback   func(c ConflictCase, err error)
	OnManual     func(c ConflictCase, result ResolutionResult)
}

// resolverOptions holds construction-time options.
type resolverOptions struct {
	logger  Logger
	metrics MetricsCollector
	hooks   Hooks
	now     func() int64
}

// Option implements the Uber-style functional options pattern for construction.
type Option interface{ apply(*resolverOptions) }

type optionFn func(*resolverOptions)

func (f optionFn) apply(o *resolverOptions) { f(o) }

// WithLogger attaches an optional logger for resolution tracing.
func WithLogger(l Logger) Option { return optionFn(func(o *resolverOptions) { o.logger = l }) }

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func WithMetrics(m MetricsCollector) Option {
	return optionFn(func(o *resolverOptions) { o.metrics = m })
}

// WithHooks sets optional observability hooks. Zero-value safe.
func WithHooks(h Hooks) Option { return optionFn(func(o *resolverOptions) { o.hooks = h }) }

// WithClock overrides the clock used to stamp merged timestamp fields, in
// epoch milliseconds. Tests use it to keep merged records deterministic.
func WithClock(now func() int64) Option {
	return optionFn(func(o *resolverOptions) { o.now = now })
}

// Resolver decides conflict cases against the resolution configurations held
// by its Registry. It is safe for concurrent use; each call is a bounded,
// single pass over record fields with no I/O and no blocking.
type Resolver struct {
	registry *Registry
	logger   Logger
	metrics  MetricsCollector
	hooks    Hooks
	now      func() int64
}

var _ ConflictResolver = (*Resolver)(nil)

// NewResolver constructs a Resolver bound to a registry handle owned by the
// hosting application.
func NewResolver(registry *Registry, opts ...Option) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("resolver requires a non-nil registry")
	}

	cfg := &resolverOptions{}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	r := &Resolver{
		registry: registry,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		hooks:    cfg.hooks,
		now:      cfg.now,
	}
	if r.metrics == nil {
		r.metrics = &NoOpMetricsCollector{}
	}
	if r.now == nil {
		r.now = func() int64 { return time.Now().UnixMilli() }
	}
	return r, nil
}

// Resolve decides one conflict case. It never returns an error and never
// panics: internal failures degrade to a remote-wins fallback reported
// through the logger, metrics and hooks. The context is accepted for
// interface compatibility with decorators; the engine itself never blocks,
// so cancellation is not meaningful inside it.
func (r *Resolver) Resolve(ctx context.Context, c ConflictCase) ResolutionResult {
	start := time.Now()
	res := r.resolve(c)
	duration := time.Since(start)

	r.metrics.RecordResolution(c.EntityType, res.StrategyUsed.String(), res.Category.String(), duration, res.Resolved)
	if n := len(res.ConflictDetails); n > 0 {
		r.metrics.RecordConflictFields(c.EntityType, n)
	}
	if res.NeedsManualResolution {
		r.metrics.RecordManualReview(c.EntityType)
		if r.hooks.OnManual != nil {
			r.hooks.OnManual(c, res)
		}
	} else if r.hooks.OnResolved != nil {
		r.hooks.OnResolved(c, res)
	}
	if r.logger != nil {
		r.logger.Debug("resolved conflict",
			"entity_type", c.EntityType,
			"id", c.ID,
			"category", res.Category.String(),
			"strategy", res.StrategyUsed.String(),
			"decision", res.Decision(),
			"duration", duration)
	}
	return res
}

func (r *Resolver) resolve(c ConflictCase) (result ResolutionResult) {
	var (
		cfg      ResolutionConfig
		category ConflictCategory
	)
	defer func() {
		if rec := recover(); rec != nil {
			err := errors.NewInternalError(errors.OpResolve,
				fmt.Errorf("panic during resolution: %v", rec))
			err.Metadata = map[string]interface{}{"entity_type": c.EntityType, "id": c.ID}
			result = r.fallback(c, category, err)
		}
	}()

	category = Classify(c.Local, c.Remote)
	cfg = r.registry.ConfigFor(c.EntityType)
	if r.hooks.OnClassified != nil {
		r.hooks.OnClassified(c, category)
	}

	switch category {
	case CategoryBothDeleted:
		return ResolutionResult{
			Resolved:     true,
			ShouldDelete: true,
			StrategyUsed: cfg.DefaultStrategy,
			Category:     category,
			Reasons:      []string{"both sides deleted the record"},
		}

	case CategoryLocalDeletedRemoteModified:
		return ResolutionResult{
			Resolved:       true,
			ResolvedRecord: c.Remote,
			StrategyUsed:   cfg.DefaultStrategy,
			Category:       category,
			Reasons:        []string{"only the remote side still has the record"},
		}

	case CategoryRemoteDeletedLocalModified:
		return r.resolveRemoteDeleted(c, cfg, category)

	default:
		return r.resolveBothPresent(c, cfg, category)
	}
}

// resolveRemoteDeleted decides the delete-versus-resurrect question when the
// remote side deleted a record the local side modified. The entity's default
// strategy decides, overriding presence-based classification; without this
// branch a naive remote-wins reading would silently discard local edits.
func (r *Resolver) resolveRemoteDeleted(c ConflictCase, cfg ResolutionConfig, category ConflictCategory) ResolutionResult {
	switch cfg.DefaultStrategy {
	case StrategyLocalWins, StrategyMerge, StrategySmartMerge:
		return ResolutionResult{
			Resolved:       true,
			ResolvedRecord: c.Local,
			StrategyUsed:   cfg.DefaultStrategy,
			Category:       category,
			Reasons:        []string{"remote deleted the record; local modifications resurrect it"},
		}

	case StrategyLatestWins:
		if c.LocalTimestamp > c.RemoteTimestamp {
			return ResolutionResult{
				Resolved:       true,
				ResolvedRecord: c.Local,
				StrategyUsed:   StrategyLatestWins,
				Category:       category,
				Reasons:        []string{"local modification is newer than the remote delete"},
			}
		}
		return ResolutionResult{
			Resolved:     true,
			ShouldDelete: true,
			StrategyUsed: StrategyLatestWins,
			Category:     category,
			Reasons:      []string{"remote delete is at least as new as the local modification"},
		}

	case StrategyManual:
		return ResolutionResult{
			StrategyUsed:          StrategyManual,
			Category:              category,
			ConflictDetails:       oneSidedDetails(c.Local, true),
			NeedsManualResolution: true,
			Reasons:               []string{"remote deleted a locally modified record; needs a human decision"},
		}

	default:
		return ResolutionResult{
			Resolved:     true,
			ShouldDelete: true,
			StrategyUsed: cfg.DefaultStrategy,
			Category:     category,
			Reasons:      []string{"remote delete honored"},
		}
	}
}

func (r *Resolver) resolveBothPresent(c ConflictCase, cfg ResolutionConfig, category ConflictCategory) ResolutionResult {
	switch cfg.DefaultStrategy {
	case StrategyLocalWins:
		return ResolutionResult{
			Resolved:       true,
			ResolvedRecord: c.Local,
			StrategyUsed:   StrategyLocalWins,
			Category:       category,
			Reasons:        []string{"local record kept verbatim"},
		}

	case StrategyRemoteWins:
		return ResolutionResult{
			Resolved:       true,
			ResolvedRecord: c.Remote,
			StrategyUsed:   StrategyRemoteWins,
			Category:       category,
			Reasons:        []string{"remote record kept verbatim"},
		}

	case StrategyLatestWins:
		if c.LocalTimestamp > c.RemoteTimestamp {
			return ResolutionResult{
				Resolved:       true,
				ResolvedRecord: c.Local,
				StrategyUsed:   StrategyLatestWins,
				Category:       category,
				Reasons:        []string{"local side is newer"},
			}
		}
		return ResolutionResult{
			Resolved:       true,
			ResolvedRecord: c.Remote,
			StrategyUsed:   StrategyLatestWins,
			Category:       category,
			Reasons:        []string{"remote side is at least as new"},
		}

	case StrategyMerge:
		return r.resolveMerge(c, cfg, category, false)

	case StrategySmartMerge:
		return r.resolveMerge(c, cfg, category, true)

	case StrategyManual:
		return r.resolveManual(c, category)

	default:
		err := errors.NewConfigurationError(errors.OpResolve,
			fmt.Errorf("no resolution path for strategy %d on entity type %q", int(cfg.DefaultStrategy), c.EntityType))
		return r.fallback(c, category, err)
	}
}

// resolveMerge runs the two-way or three-way merge. SmartMerge without a
// common ancestor falls back to the two-way merge.
func (r *Resolver) resolveMerge(c ConflictCase, cfg ResolutionConfig, category ConflictCategory, smart bool) ResolutionResult {
	strategy := StrategyMerge
	var out *mergeOutcome
	var reasons []string

	if smart {
		strategy = StrategySmartMerge
		if c.Ancestor == nil {
			out = mergeTwoWay(c, cfg)
			reasons = append(reasons, "no common ancestor; fell back to a two-way merge")
		} else {
			out = mergeThreeWay(c, cfg)
		}
	} else {
		out = mergeTwoWay(c, cfg)
	}

	for _, err := range out.errs {
		r.report(c, err)
	}

	bumpVersion(out.merged, c, cfg.VersionField)
	stampTimestamp(out.merged, cfg.TimestampField, r.now())
	sortDetails(out.details)

	return ResolutionResult{
		Resolved:             true,
		ResolvedRecord:       out.merged,
		StrategyUsed:         strategy,
		Category:             category,
		PerFieldStrategyUsed: out.perField,
		ConflictDetails:      out.details,
		Reasons:              append(reasons, out.reasons...),
	}
}

// resolveManual hands the conflict to a human: every field the two sides do
// not agree on, sorted by name, with no resolved value.
func (r *Resolver) resolveManual(c ConflictCase, category ConflictCategory) ResolutionResult {
	d, err := diff.Fields(c.Local, c.Remote)
	if err != nil {
		r.report(c, err)
	}

	details := make([]FieldConflict, 0, len(d.ChangedInBoth)+len(d.OnlyInLocal)+len(d.OnlyInRemote))
	for _, name := range d.ChangedInBoth {
		details = append(details, FieldConflict{
			Field:       name,
			LocalValue:  valuePtr(c.Local[name]),
			RemoteValue: valuePtr(c.Remote[name]),
		})
	}
	for _, name := range d.OnlyInLocal {
		details = append(details, FieldConflict{Field: name, LocalValue: valuePtr(c.Local[name])})
	}
	for _, name := range d.OnlyInRemote {
		details = append(details, FieldConflict{Field: name, RemoteValue: valuePtr(c.Remote[name])})
	}
	sortDetails(details)

	return ResolutionResult{
		StrategyUsed:          StrategyManual,
		Category:              category,
		ConflictDetails:       details,
		NeedsManualResolution: true,
		Reasons:               []string{"manual review required"},
	}
}

// fallback converts an internal failure to the safe remote-wins decision.
// The result carries the remote state but is flagged unresolved so the sync
// queue does not persist it automatically.
func (r *Resolver) fallback(c ConflictCase, category ConflictCategory, err error) ResolutionResult {
	r.report(c, err)
	r.metrics.RecordFallback(c.EntityType)
	if r.hooks.OnFallback != nil {
		r.hooks.OnFallback(c, err)
	}
	return ResolutionResult{
		Resolved:       false,
		ResolvedRecord: c.Remote,
		ShouldDelete:   c.Remote == nil,
		StrategyUsed:   StrategyRemoteWins,
		Category:       category,
		Reasons:        []string{"internal failure; fell back to the remote state"},
	}
}

// report surfaces a degraded decision on the side channel.
func (r *Resolver) report(c ConflictCase, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrCodeInternalFailure
	}
	r.metrics.RecordResolutionError(c.EntityType, string(code))
	if r.logger != nil {
		r.logger.Error("conflict resolution degraded",
			"entity_type", c.EntityType,
			"id", c.ID,
			"error", err)
	}
}

// oneSidedDetails lists the non-reserved fields of a record that only one
// side still has, for manual review.
func oneSidedDetails(rec record.Record, local bool) []FieldConflict {
	details := make([]FieldConflict, 0, len(rec))
	for _, name := range rec.Fields() {
		if reservedField(name) {
			continue
		}
		fc := FieldConflict{Field: name}
		if local {
			fc.LocalValue = valuePtr(rec[name])
		} else {
			fc.RemoteValue = valuePtr(rec[name])
		}
		details = append(details, fc)
	}
	return details
}

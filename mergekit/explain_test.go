package mergekit

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/Havanyani/go-merge-kit/record"
)

// TestExplain_Golden pins the rendered resolution account for representative
// cases. Regenerate with: go test ./mergekit -run TestExplain_Golden -update
func TestExplain_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	ctx := context.Background()

	t.Run("remote_wins", func(t *testing.T) {
		r := mustResolver(t, NewRegistry())
		res := r.Resolve(ctx, ConflictCase{
			EntityType: "task",
			Local:      record.MustRecord(map[string]any{"id": "t1", "status": "pending"}),
			Remote:     record.MustRecord(map[string]any{"id": "t1", "status": "done"}),
		})
		g.Assert(t, "remote_wins", []byte(res.Explain()))
	})

	t.Run("merge_concatenate", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, "task", ResolutionConfig{
			DefaultStrategy: StrategyMerge,
			FieldStrategies: map[string]FieldStrategy{"notes": {Kind: FieldConcatenate}},
			VersionField:    "version",
			TimestampField:  "updated_at",
		})
		r := mustResolver(t, reg, WithClock(func() int64 { return 1700000000000 }))
		res := r.Resolve(ctx, ConflictCase{
			EntityType: "task",
			Local:      record.MustRecord(map[string]any{"id": "t1", "notes": "call first", "status": "pending", "version": 3}),
			Remote:     record.MustRecord(map[string]any{"id": "t1", "notes": "leave at door", "status": "done", "version": 5}),
		})
		g.Assert(t, "merge_concatenate", []byte(res.Explain()))
	})

	t.Run("smart_merge_counter", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, "item", ResolutionConfig{
			DefaultStrategy: StrategySmartMerge,
			FieldStrategies: map[string]FieldStrategy{"qty": {Kind: FieldNumericAdd}},
		})
		r := mustResolver(t, reg)
		res := r.Resolve(ctx, ConflictCase{
			EntityType: "item",
			Ancestor:   record.MustRecord(map[string]any{"id": "i1", "qty": 5}),
			Local:      record.MustRecord(map[string]any{"id": "i1", "qty": 8}),
			Remote:     record.MustRecord(map[string]any{"id": "i1", "qty": 9}),
		})
		g.Assert(t, "smart_merge_counter", []byte(res.Explain()))
	})

	t.Run("manual_review", func(t *testing.T) {
		reg := NewRegistry()
		mustRegister(t, reg, "task", ResolutionConfig{DefaultStrategy: StrategyManual})
		r := mustResolver(t, reg)
		res := r.Resolve(ctx, ConflictCase{
			EntityType: "task",
			Local:      record.MustRecord(map[string]any{"assignee": "ana", "status": "pending"}),
			Remote:     record.MustRecord(map[string]any{"priority": 2, "status": "done"}),
		})
		g.Assert(t, "manual_review", []byte(res.Explain()))
	})

	t.Run("both_deleted", func(t *testing.T) {
		r := mustResolver(t, NewRegistry())
		res := r.Resolve(ctx, ConflictCase{EntityType: "task"})
		g.Assert(t, "both_deleted", []byte(res.Explain()))
	})
}

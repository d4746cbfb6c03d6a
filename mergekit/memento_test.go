package mergekit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Havanyani/go-merge-kit/record"
)

func auditRecord(id, caseID string, ts time.Time) *ResolutionRecord {
	return &ResolutionRecord{
		ID:         id,
		Timestamp:  ts,
		EntityType: "task",
		CaseID:     caseID,
		Category:   CategoryBothModified.String(),
		Strategy:   StrategyMerge.String(),
		Decision:   "merge",
	}
}

func TestInMemoryCaretaker_SaveAndGet(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	ctx := context.Background()

	rec := auditRecord("res-1", "case-1", time.Now())
	rec.Reasons = []string{"field \"notes\" merged"}
	if err := caretaker.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := caretaker.Get(ctx, "res-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CaseID != "case-1" || got.Decision != "merge" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// The stored record is isolated from later mutations of the copy.
	got.Decision = "tampered"
	again, err := caretaker.Get(ctx, "res-1")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if again.Decision != "merge" {
		t.Fatalf("stored record mutated through a returned copy: %+v", again)
	}
}

func TestInMemoryCaretaker_SaveRequiresID(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	if err := caretaker.Save(context.Background(), &ResolutionRecord{}); err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestInMemoryCaretaker_GetNotFound(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	_, err := caretaker.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing record")
	}
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestInMemoryCaretaker_ListFiltersAndPaginates(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := auditRecord(fmt.Sprintf("res-%d", i), "case-1", base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			rec.EntityType = "contact"
			rec.UserID = "user-7"
		}
		if err := caretaker.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := caretaker.List(ctx, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("records out of chronological order: %v after %v", all[i].Timestamp, all[i-1].Timestamp)
		}
	}

	tasks, err := caretaker.List(ctx, &Criteria{EntityType: "task"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 task records, got %d", len(tasks))
	}

	byUser, err := caretaker.List(ctx, &Criteria{UserID: "user-7"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 records for user, got %d", len(byUser))
	}

	from := base.Add(90 * time.Second)
	recent, err := caretaker.List(ctx, &Criteria{FromTime: &from})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 records from %v, got %d", from, len(recent))
	}

	page, err := caretaker.List(ctx, &Criteria{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if page[0].ID != "res-1" || page[1].ID != "res-2" {
		t.Fatalf("unexpected page contents: %s, %s", page[0].ID, page[1].ID)
	}

	past, err := caretaker.List(ctx, &Criteria{Offset: 99})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("offset past the end should be empty, got %d", len(past))
	}
}

func TestInMemoryCaretaker_Delete(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	ctx := context.Background()

	if err := caretaker.Save(ctx, auditRecord("res-1", "case-1", time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := caretaker.Delete(ctx, "res-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := caretaker.Get(ctx, "res-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after delete, got %v", err)
	}
	if err := caretaker.Delete(ctx, "res-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for double delete, got %v", err)
	}
}

func TestAuditingResolver_RecordsResolution(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, "task", ResolutionConfig{
		DefaultStrategy: StrategyMerge,
		FieldStrategies: map[string]FieldStrategy{"notes": {Kind: FieldConcatenate}},
	})
	inner := mustResolver(t, reg)
	caretaker := NewInMemoryCaretaker()

	audited := NewAuditingResolver(inner, caretaker,
		WithUserIDExtractor(func(ctx context.Context) string { return "user-1" }),
		WithSessionIDExtractor(func(ctx context.Context) string { return "session-9" }),
		WithOriginExtractor(func(ctx context.Context) string { return "laptop" }),
	)

	res := audited.Resolve(context.Background(), ConflictCase{
		ID:         "case-42",
		EntityType: "task",
		Local:      record.MustRecord(map[string]any{"notes": "call first"}),
		Remote:     record.MustRecord(map[string]any{"notes": "leave at door"}),
		Metadata:   map[string]any{"device": "phone"},
	})
	if !res.Resolved {
		t.Fatal("expected resolved result")
	}

	trail, err := audited.AuditTrail(context.Background(), "case-42")
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail))
	}

	rec := trail[0]
	if rec.ID == "" {
		t.Fatal("expected generated record ID")
	}
	if rec.EntityType != "task" || rec.CaseID != "case-42" {
		t.Fatalf("unexpected identification: %+v", rec)
	}
	if rec.Category != "both_modified" || rec.Strategy != "merge" || rec.Decision != "merge" {
		t.Fatalf("unexpected outcome fields: category=%s strategy=%s decision=%s", rec.Category, rec.Strategy, rec.Decision)
	}
	if rec.PerFieldStrategies["notes"] != "concatenate" {
		t.Fatalf("expected per-field strategy recorded, got %v", rec.PerFieldStrategies)
	}
	if len(rec.ConflictDetails) != 1 || rec.ConflictDetails[0].Field != "notes" {
		t.Fatalf("expected the notes conflict recorded, got %v", rec.ConflictDetails)
	}
	if rec.UserID != "user-1" || rec.SessionID != "session-9" || rec.Origin != "laptop" {
		t.Fatalf("context extractors not applied: %+v", rec)
	}
	if rec.Metadata["device"] != "phone" {
		t.Fatalf("case metadata not carried: %v", rec.Metadata)
	}
	if !strings.Contains(rec.ResolverName, "Resolver") {
		t.Fatalf("unexpected resolver name %q", rec.ResolverName)
	}
	if rec.BeforeState == nil || rec.BeforeState.Local == nil || rec.BeforeState.Remote == nil {
		t.Fatalf("before state incomplete: %+v", rec.BeforeState)
	}
	if rec.AfterState == nil || rec.AfterState.Resolved == nil {
		t.Fatalf("after state incomplete: %+v", rec.AfterState)
	}
	if got, ok := rec.Context["resolved"].(bool); !ok || !got {
		t.Fatalf("expected resolved flag in context, got %v", rec.Context)
	}
}

func TestAuditingResolver_ManualOutcomeFlagged(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, "task", ResolutionConfig{DefaultStrategy: StrategyManual})
	inner := mustResolver(t, reg)
	caretaker := NewInMemoryCaretaker()
	audited := NewAuditingResolver(inner, caretaker)

	audited.Resolve(context.Background(), ConflictCase{
		ID:         "case-1",
		EntityType: "task",
		Local:      record.MustRecord(map[string]any{"a": 1}),
		Remote:     record.MustRecord(map[string]any{"a": 2}),
	})

	trail, err := audited.AuditTrail(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(trail))
	}
	if trail[0].Decision != "manual_review" {
		t.Fatalf("expected manual_review decision, got %s", trail[0].Decision)
	}
	if flagged, ok := trail[0].Context["needs_manual_resolution"].(bool); !ok || !flagged {
		t.Fatalf("expected manual flag in context, got %v", trail[0].Context)
	}
}

// failingCaretaker rejects every save so the decorator's degradation path
// can be observed.
type failingCaretaker struct {
	InMemoryCaretaker
}

func (f *failingCaretaker) Save(ctx context.Context, rec *ResolutionRecord) error {
	return fmt.Errorf("disk full")
}

func TestAuditingResolver_SaveFailureDoesNotFailResolution(t *testing.T) {
	reg := NewRegistry()
	inner := mustResolver(t, reg)
	logger := &mockLogger{}
	audited := NewAuditingResolver(inner, &failingCaretaker{}, WithAuditLogger(logger))

	res := audited.Resolve(context.Background(), ConflictCase{
		EntityType: "task",
		Local:      record.MustRecord(map[string]any{"a": 1}),
		Remote:     record.MustRecord(map[string]any{"a": 2}),
	})

	if !res.Resolved {
		t.Fatal("a failed audit save must not fail the resolution")
	}
	if logger.errors != 1 {
		t.Fatalf("expected the save failure logged, got %d error logs", logger.errors)
	}
}

func TestRollbackCapability_AnalyzeRollback(t *testing.T) {
	caretaker := NewInMemoryCaretaker()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := auditRecord(fmt.Sprintf("res-%d", i), "case-1", base.Add(time.Duration(i)*time.Hour))
		if err := caretaker.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	rc := NewRollbackCapability(caretaker)

	analysis, err := rc.AnalyzeRollback(ctx, "res-0")
	if err != nil {
		t.Fatalf("AnalyzeRollback failed: %v", err)
	}
	if analysis.TargetRecord.ID != "res-0" {
		t.Fatalf("unexpected target: %s", analysis.TargetRecord.ID)
	}
	if len(analysis.AffectedResolutions) != 2 {
		t.Fatalf("expected 2 later resolutions affected, got %d", len(analysis.AffectedResolutions))
	}
	if !analysis.RequiresReprocessing {
		t.Fatal("expected reprocessing required")
	}
	if analysis.RollbackComplexity != "moderate" {
		t.Fatalf("expected moderate complexity, got %s", analysis.RollbackComplexity)
	}

	analysis, err = rc.AnalyzeRollback(ctx, "res-2")
	if err != nil {
		t.Fatalf("AnalyzeRollback failed: %v", err)
	}
	if len(analysis.AffectedResolutions) != 0 {
		t.Fatalf("latest record affects nothing, got %d", len(analysis.AffectedResolutions))
	}
	if analysis.RollbackComplexity != "simple" || analysis.RequiresReprocessing {
		t.Fatalf("expected simple rollback, got %s reprocessing=%t", analysis.RollbackComplexity, analysis.RequiresReprocessing)
	}

	if _, err := rc.AnalyzeRollback(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown record")
	}
}

func TestNewAuditID_UniqueAndOrdered(t *testing.T) {
	a, b := NewAuditID(), NewAuditID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty IDs")
	}
	if a == b {
		t.Fatalf("expected unique IDs, got %s twice", a)
	}
	if b < a {
		t.Fatalf("expected time-ordered IDs, got %s before %s", a, b)
	}
}

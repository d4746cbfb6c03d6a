package mergekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Havanyani/go-merge-kit/record"
)

// ErrRecordNotFound is returned by caretakers when no resolution record
// carries the requested ID.
var ErrRecordNotFound = errors.New("mergekit: resolution record not found")

// ResolutionRecord captures the complete state and outcome of one conflict
// resolution. It implements the Memento pattern for audit trails and
// rollback analysis, and stays JSON serializable end to end.
type ResolutionRecord struct {
	// Unique identifier for this resolution
	ID string `json:"id"`

	// Timestamp when the resolution occurred
	Timestamp time.Time `json:"timestamp"`

	// Conflict identification
	EntityType string         `json:"entity_type"`
	CaseID     string         `json:"case_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Outcome
	Category           string            `json:"category"`
	Strategy           string            `json:"strategy"`
	Decision           string            `json:"decision"`
	Reasons            []string          `json:"reasons,omitempty"`
	PerFieldStrategies map[string]string `json:"per_field_strategies,omitempty"`
	ConflictDetails    []FieldConflict   `json:"conflict_details,omitempty"`

	// Resolution metadata
	ResolverName string         `json:"resolver_name"`
	Context      map[string]any `json:"context,omitempty"`

	// Audit trail information
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Origin    string `json:"origin,omitempty"`

	// Performance metrics
	ResolutionDuration time.Duration `json:"resolution_duration"`

	// State before resolution (for rollback analysis)
	BeforeState *CaseState `json:"before_state,omitempty"`

	// State after resolution
	AfterState *CaseState `json:"after_state,omitempty"`
}

// CaseState captures the records involved in a conflict at one point in
// time. Record values serialize canonically, so states are comparable as
// stored.
type CaseState struct {
	CaseID          string        `json:"case_id"`
	EntityType      string        `json:"entity_type,omitempty"`
	LocalTimestamp  int64         `json:"local_timestamp,omitempty"`
	RemoteTimestamp int64         `json:"remote_timestamp,omitempty"`
	LocalVersion    int64         `json:"local_version,omitempty"`
	RemoteVersion   int64         `json:"remote_version,omitempty"`
	Local           record.Record `json:"local,omitempty"`
	Remote          record.Record `json:"remote,omitempty"`
	Ancestor        record.Record `json:"ancestor,omitempty"`
	Resolved        record.Record `json:"resolved,omitempty"`
	ShouldDelete    bool          `json:"should_delete,omitempty"`
}

// Caretaker manages the storage and retrieval of resolution records. It acts
// as the caretaker in the Memento pattern; storage/sqlite provides the
// persistent implementation.
type Caretaker interface {
	// Save stores a resolution record
	Save(ctx context.Context, rec *ResolutionRecord) error

	// Get retrieves a specific record by ID
	Get(ctx context.Context, id string) (*ResolutionRecord, error)

	// List retrieves records matching the criteria, newest last
	List(ctx context.Context, criteria *Criteria) ([]*ResolutionRecord, error)

	// Delete removes a record (with appropriate authorization)
	Delete(ctx context.Context, id string) error

	// AuditTrail returns the complete audit trail for one entity
	AuditTrail(ctx context.Context, caseID string) ([]*ResolutionRecord, error)
}

// Criteria defines search criteria for querying resolution records.
type Criteria struct {
	EntityType string     `json:"entity_type,omitempty"`
	CaseID     string     `json:"case_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Decision   string     `json:"decision,omitempty"`
	FromTime   *time.Time `json:"from_time,omitempty"`
	ToTime     *time.Time `json:"to_time,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// InMemoryCaretaker keeps resolution records in process memory. Suited to
// tests and short-lived tools; sync daemons use the sqlite store.
type InMemoryCaretaker struct {
	mu      sync.RWMutex
	records map[string]*ResolutionRecord
}

// NewInMemoryCaretaker creates an empty in-memory caretaker.
func NewInMemoryCaretaker() *InMemoryCaretaker {
	return &InMemoryCaretaker{
		records: make(map[string]*ResolutionRecord),
	}
}

func (c *InMemoryCaretaker) Save(ctx context.Context, rec *ResolutionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("resolution record ID cannot be empty")
	}

	// Deep copy to avoid external mutations
	copied, err := copyRecord(rec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ID] = copied
	return nil
}

func (c *InMemoryCaretaker) Get(ctx context.Context, id string) (*ResolutionRecord, error) {
	c.mu.RLock()
	rec, exists := c.records[id]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}

	// Return a deep copy to prevent external mutations
	return copyRecord(rec)
}

func (c *InMemoryCaretaker) List(ctx context.Context, criteria *Criteria) ([]*ResolutionRecord, error) {
	c.mu.RLock()
	matched := make([]*ResolutionRecord, 0, len(c.records))
	for _, rec := range c.records {
		if matchesCriteria(rec, criteria) {
			matched = append(matched, rec)
		}
	}
	c.mu.RUnlock()

	// Stable chronological order so limit and offset paginate predictably.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})

	if criteria != nil {
		if criteria.Offset > 0 {
			if criteria.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[criteria.Offset:]
			}
		}
		if criteria.Limit > 0 && criteria.Limit < len(matched) {
			matched = matched[:criteria.Limit]
		}
	}

	results := make([]*ResolutionRecord, 0, len(matched))
	for _, rec := range matched {
		copied, err := copyRecord(rec)
		if err != nil {
			return nil, err
		}
		results = append(results, copied)
	}
	return results, nil
}

func (c *InMemoryCaretaker) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; !exists {
		return fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}
	delete(c.records, id)
	return nil
}

func (c *InMemoryCaretaker) AuditTrail(ctx context.Context, caseID string) ([]*ResolutionRecord, error) {
	return c.List(ctx, &Criteria{CaseID: caseID})
}

func copyRecord(rec *ResolutionRecord) (*ResolutionRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resolution record: %w", err)
	}
	var copied ResolutionRecord
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to deserialize resolution record: %w", err)
	}
	return &copied, nil
}

func matchesCriteria(rec *ResolutionRecord, criteria *Criteria) bool {
	if criteria == nil {
		return true
	}
	if criteria.EntityType != "" && rec.EntityType != criteria.EntityType {
		return false
	}
	if criteria.CaseID != "" && rec.CaseID != criteria.CaseID {
		return false
	}
	if criteria.UserID != "" && rec.UserID != criteria.UserID {
		return false
	}
	if criteria.Decision != "" && rec.Decision != criteria.Decision {
		return false
	}
	if criteria.FromTime != nil && rec.Timestamp.Before(*criteria.FromTime) {
		return false
	}
	if criteria.ToTime != nil && rec.Timestamp.After(*criteria.ToTime) {
		return false
	}
	return true
}

// AuditingResolver wraps any ConflictResolver to record an audit trail entry
// per resolution.
type AuditingResolver struct {
	wrapped   ConflictResolver
	caretaker Caretaker
	logger    Logger

	// Context extractors for audit metadata
	userIDExtractor    func(context.Context) string
	sessionIDExtractor func(context.Context) string
	originExtractor    func(context.Context) string
}

var _ ConflictResolver = (*AuditingResolver)(nil)

// NewAuditingResolver wraps an existing resolver with audit trail recording.
func NewAuditingResolver(resolver ConflictResolver, caretaker Caretaker, opts ...AuditOption) *AuditingResolver {
	ar := &AuditingResolver{
		wrapped:   resolver,
		caretaker: caretaker,
	}
	for _, opt := range opts {
		opt.apply(ar)
	}
	return ar
}

// AuditOption provides configuration options for AuditingResolver.
type AuditOption interface {
	apply(*AuditingResolver)
}

type auditOptionFunc func(*AuditingResolver)

func (f auditOptionFunc) apply(ar *AuditingResolver) {
	f(ar)
}

// WithAuditLogger sets a logger for the auditing resolver.
func WithAuditLogger(logger Logger) AuditOption {
	return auditOptionFunc(func(ar *AuditingResolver) {
		ar.logger = logger
	})
}

// WithUserIDExtractor sets a function to extract the acting user from context.
func WithUserIDExtractor(extractor func(context.Context) string) AuditOption {
	return auditOptionFunc(func(ar *AuditingResolver) {
		ar.userIDExtractor = extractor
	})
}

// WithSessionIDExtractor sets a function to extract the sync session from context.
func WithSessionIDExtractor(extractor func(context.Context) string) AuditOption {
	return auditOptionFunc(func(ar *AuditingResolver) {
		ar.sessionIDExtractor = extractor
	})
}

// WithOriginExtractor sets a function to extract the originating device or
// node from context.
func WithOriginExtractor(extractor func(context.Context) string) AuditOption {
	return auditOptionFunc(func(ar *AuditingResolver) {
		ar.originExtractor = extractor
	})
}

// Resolve implements ConflictResolver with audit trail creation. The audit
// save never fails the resolution; a failed save is logged and the decision
// still returned.
func (ar *AuditingResolver) Resolve(ctx context.Context, c ConflictCase) ResolutionResult {
	start := time.Now()

	beforeState := &CaseState{
		CaseID:          c.ID,
		EntityType:      c.EntityType,
		LocalTimestamp:  c.LocalTimestamp,
		RemoteTimestamp: c.RemoteTimestamp,
		LocalVersion:    c.LocalVersion,
		RemoteVersion:   c.RemoteVersion,
		Local:           c.Local,
		Remote:          c.Remote,
		Ancestor:        c.Ancestor,
	}

	result := ar.wrapped.Resolve(ctx, c)
	duration := time.Since(start)

	rec := &ResolutionRecord{
		ID:                 NewAuditID(),
		Timestamp:          time.Now(),
		EntityType:         c.EntityType,
		CaseID:             c.ID,
		Metadata:           c.Metadata,
		Category:           result.Category.String(),
		Strategy:           result.StrategyUsed.String(),
		Decision:           result.Decision(),
		Reasons:            result.Reasons,
		ConflictDetails:    result.ConflictDetails,
		ResolverName:       fmt.Sprintf("%T", ar.wrapped),
		Context:            map[string]any{"resolved": result.Resolved},
		ResolutionDuration: duration,
		BeforeState:        beforeState,
		AfterState: &CaseState{
			CaseID:       c.ID,
			EntityType:   c.EntityType,
			Resolved:     result.ResolvedRecord,
			ShouldDelete: result.ShouldDelete,
		},
	}
	if len(result.PerFieldStrategyUsed) > 0 {
		rec.PerFieldStrategies = make(map[string]string, len(result.PerFieldStrategyUsed))
		for field, kind := range result.PerFieldStrategyUsed {
			rec.PerFieldStrategies[field] = kind.String()
		}
	}
	if result.NeedsManualResolution {
		rec.Context["needs_manual_resolution"] = true
	}

	// Extract audit metadata from context
	if ar.userIDExtractor != nil {
		rec.UserID = ar.userIDExtractor(ctx)
	}
	if ar.sessionIDExtractor != nil {
		rec.SessionID = ar.sessionIDExtractor(ctx)
	}
	if ar.originExtractor != nil {
		rec.Origin = ar.originExtractor(ctx)
	}

	if saveErr := ar.caretaker.Save(ctx, rec); saveErr != nil && ar.logger != nil {
		ar.logger.Error("Failed to save resolution record", "error", saveErr, "record_id", rec.ID)
	} else if ar.logger != nil {
		ar.logger.Debug("Saved resolution record", "record_id", rec.ID, "case_id", c.ID)
	}

	return result
}

// AuditTrail retrieves the audit trail for a specific entity.
func (ar *AuditingResolver) AuditTrail(ctx context.Context, caseID string) ([]*ResolutionRecord, error) {
	return ar.caretaker.AuditTrail(ctx, caseID)
}

// RollbackCapability analyzes what undoing a recorded resolution would
// involve. Actual rollback requires coordination with the sync queue and
// local storage, which own persistence.
type RollbackCapability struct {
	caretaker Caretaker
}

// NewRollbackCapability creates a new rollback analyzer.
func NewRollbackCapability(caretaker Caretaker) *RollbackCapability {
	return &RollbackCapability{caretaker: caretaker}
}

// AnalyzeRollback reports the resolutions that would be invalidated by
// rolling back the identified one.
func (rc *RollbackCapability) AnalyzeRollback(ctx context.Context, recordID string) (*RollbackAnalysis, error) {
	rec, err := rc.caretaker.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution record: %w", err)
	}

	trail, err := rc.caretaker.AuditTrail(ctx, rec.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}

	var affected []*ResolutionRecord
	for _, other := range trail {
		if other.Timestamp.After(rec.Timestamp) {
			affected = append(affected, other)
		}
	}

	return &RollbackAnalysis{
		TargetRecord:         rec,
		AffectedResolutions:  affected,
		RollbackComplexity:   rollbackComplexity(affected),
		RequiresReprocessing: len(affected) > 0,
	}, nil
}

// RollbackAnalysis describes the implications of rolling back a resolution.
type RollbackAnalysis struct {
	TargetRecord         *ResolutionRecord   `json:"target_record"`
	AffectedResolutions  []*ResolutionRecord `json:"affected_resolutions"`
	RollbackComplexity   string              `json:"rollback_complexity"`
	RequiresReprocessing bool                `json:"requires_reprocessing"`
	Warnings             []string            `json:"warnings,omitempty"`
}

func rollbackComplexity(affected []*ResolutionRecord) string {
	switch {
	case len(affected) == 0:
		return "simple"
	case len(affected) <= 3:
		return "moderate"
	default:
		return "complex"
	}
}

// NewAuditID generates a time-ordered unique ID for a resolution record.
func NewAuditID() string {
	return uuid.Must(uuid.NewV7()).String()
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mergeErrors "github.com/Havanyani/go-merge-kit/errors"
	"github.com/Havanyani/go-merge-kit/mergekit"
)

// criteriaWhere renders search criteria into a WHERE clause. Time bounds
// are inclusive on both ends, matching the in-memory caretaker.
func criteriaWhere(criteria *mergekit.Criteria) (string, []any) {
	if criteria == nil {
		return "", nil
	}

	var clauses []string
	var args []any

	if criteria.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, criteria.EntityType)
	}
	if criteria.CaseID != "" {
		clauses = append(clauses, "case_id = ?")
		args = append(args, criteria.CaseID)
	}
	if criteria.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, criteria.UserID)
	}
	if criteria.Decision != "" {
		clauses = append(clauses, "decision = ?")
		args = append(args, criteria.Decision)
	}
	if criteria.FromTime != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, criteria.FromTime.UnixNano())
	}
	if criteria.ToTime != nil {
		clauses = append(clauses, "recorded_at <= ?")
		args = append(args, criteria.ToTime.UnixNano())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanRecords is a helper to scan sql.Rows into resolution records.
func scanRecords(rows *sql.Rows) ([]*mergekit.ResolutionRecord, error) {
	var records []*mergekit.ResolutionRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan resolution row: %w", err)
		}

		var rec mergekit.ResolutionRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode resolution record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// PurgeBefore deletes audit records recorded before the cutoff and
// reports how many were removed. Retention enforcement for long-lived
// stores.
func (s *AuditStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE recorded_at < ?`, s.tableName)
	res, err := s.db.ExecContext(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, mergeErrors.NewStorageError(mergeErrors.OpAuditSave, err)
	}

	s.logger.Printf("purged %d resolution records before %s", purged, cutoff.Format(time.RFC3339))
	return purged, nil
}

// DecisionCounts reports how many stored resolutions ended in each
// decision, e.g. to surface the backlog of manual reviews.
func (s *AuditStore) DecisionCounts(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT decision, COUNT(*) FROM %s GROUP BY decision`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mergeErrors.NewStorageError(mergeErrors.OpAuditLoad, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", err)
		}
		counts[decision] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return counts, nil
}

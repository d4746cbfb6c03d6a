package mergekit

import "time"

// MetricsCollector provides hooks for collecting resolution metrics. It is
// the side channel through which degraded decisions surface without ever
// failing a sync cycle.
type MetricsCollector interface {
	// RecordResolution records one completed resolution
	RecordResolution(entityType, strategy, category string, duration time.Duration, resolved bool)

	// RecordConflictFields records how many fields truly conflicted
	RecordConflictFields(entityType string, fields int)

	// RecordFallback records a whole-record remote-wins fallback
	RecordFallback(entityType string)

	// RecordManualReview records a resolution handed to a human
	RecordManualReview(entityType string)

	// RecordResolutionError records degraded decisions by error code
	RecordResolutionError(entityType string, errorType string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordResolution(entityType, strategy, category string, duration time.Duration, resolved bool) {
}
func (n *NoOpMetricsCollector) RecordConflictFields(entityType string, fields int)        {}
func (n *NoOpMetricsCollector) RecordFallback(entityType string)                          {}
func (n *NoOpMetricsCollector) RecordManualReview(entityType string)                      {}
func (n *NoOpMetricsCollector) RecordResolutionError(entityType string, errorType string) {}

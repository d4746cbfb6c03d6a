package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Havanyani/go-merge-kit/logging"
	"github.com/Havanyani/go-merge-kit/mergekit"
	"github.com/Havanyani/go-merge-kit/record"
)

// resolutionConfig is the kind of per-entity configuration a sync daemon
// would ship alongside its deployment.
const resolutionConfig = `
version: "1"
name: resolve-demo
entities:
  - type: note
    strategy: latest_wins
  - type: task
    strategy: smart_merge
    version_field: version
    timestamp_field: updated_at
    array_strategy: union
    fields:
      title:
        strategy: custom
        merger: prefer_longer
      notes:
        strategy: concatenate
        separator: " | "
      quantity:
        strategy: numeric_add
  - type: document
    strategy: manual
`

type ctxKey string

const userIDKey ctxKey = "user_id"

func main() {
	// Initialize structured logging from environment
	config := logging.GetConfigFromEnv()
	logging.Init(config)

	ctx := context.WithValue(context.Background(), userIDKey, "user-42")

	logging.Info("Resolution demo starting",
		slog.String("version", "1.0.0"),
		slog.String("environment", config.Environment),
		slog.Time("start_time", time.Now()),
	)

	// Build the registry: named mergers first, then the file config that
	// references them.
	registry := mergekit.NewRegistry()
	if err := registry.RegisterMerger("prefer_longer", mergekit.FieldMergerFunc(preferLonger)); err != nil {
		logging.LogError(ctx, err, "Failed to register custom merger")
		os.Exit(1)
	}

	loader := mergekit.NewConfigLoader(
		mergekit.WithConfigValidator(&mergekit.BasicValidator{}),
		mergekit.WithConfigLogger(logging.Default()),
	)
	if err := loader.LoadFromBytes([]byte(resolutionConfig), "yaml"); err != nil {
		logging.LogError(ctx, err, "Failed to load resolution config")
		os.Exit(1)
	}
	if err := loader.Apply(registry); err != nil {
		logging.LogError(ctx, err, "Failed to apply resolution config")
		os.Exit(1)
	}

	logging.Info("Resolution config applied",
		slog.Any("entity_types", registry.EntityTypes()),
	)

	resolver, err := mergekit.NewResolver(registry,
		mergekit.WithLogger(logging.Default()),
		mergekit.WithHooks(mergekit.Hooks{
			OnManual: func(c mergekit.ConflictCase, result mergekit.ResolutionResult) {
				logging.Warn("Conflict needs manual review",
					slog.String("entity_type", c.EntityType),
					slog.String("id", c.ID),
					slog.Int("conflicting_fields", len(result.ConflictDetails)),
				)
			},
		}),
	)
	if err != nil {
		logging.LogError(ctx, err, "Failed to construct resolver")
		os.Exit(1)
	}

	// Record every decision through an in-memory audit trail. A sync daemon
	// would use the sqlite-backed store instead.
	caretaker := mergekit.NewInMemoryCaretaker()
	audited := mergekit.NewAuditingResolver(resolver, caretaker,
		mergekit.WithAuditLogger(logging.Default()),
		mergekit.WithUserIDExtractor(func(ctx context.Context) string {
			if v, ok := ctx.Value(userIDKey).(string); ok {
				return v
			}
			return ""
		}),
	)

	// Resolve a batch of conflicts with duration tracking
	var manual int
	err = logging.LogOperation(ctx,
		logging.Operation("resolve-batch"),
		logging.Component("resolve-demo"),
		func() error {
			for _, c := range demoCases() {
				result := audited.Resolve(ctx, c)
				if result.NeedsManualResolution {
					manual++
				}
				fmt.Printf("--- %s %s ---\n%s\n", c.EntityType, c.ID, result.Explain())
			}
			return nil
		},
	)
	if err != nil {
		logging.Error("Resolution batch failed",
			slog.String("error", err.Error()))
	}

	// Replay the audit trail for the merged task
	trail, err := audited.AuditTrail(ctx, "task-7")
	if err != nil {
		logging.LogError(ctx, err, "Failed to load audit trail")
	} else {
		for _, rec := range trail {
			logging.Info("Audit trail entry",
				slog.Group("resolution",
					slog.String("record_id", rec.ID),
					slog.String("case_id", rec.CaseID),
					slog.String("strategy", rec.Strategy),
					slog.String("decision", rec.Decision),
					slog.String("user_id", rec.UserID),
					slog.Duration("duration", rec.ResolutionDuration),
				),
			)
		}
	}

	// Demonstrate dynamic level changes
	if os.Getenv("DEMO_DYNAMIC_LEVEL") == "true" {
		logger, levelVar := logging.NewLoggerWithDynamicLevel(config)

		logger.Debug("This won't appear at INFO level")
		logger.Info("This will appear")

		// Change to debug level at runtime
		levelVar.SetFromString("debug")
		logger.Debug("This will now appear after level change")
	}

	logging.Info("Resolution demo complete",
		slog.Int("cases_resolved", len(demoCases())-manual),
		slog.Int("cases_for_review", manual),
	)
}

// preferLonger keeps whichever side carries the longer string, remote on
// ties. Non-string values fall back to remote.
func preferLonger(local, remote record.Value, _ mergekit.MergeContext) (record.Value, error) {
	ls, lok := local.AsString()
	rs, rok := remote.AsString()
	if !lok || !rok {
		return remote, nil
	}
	if len(ls) > len(rs) {
		return local, nil
	}
	return remote, nil
}

// demoCases builds one conflict per resolution path: a timestamp race, a
// three-way field merge, a delete-versus-edit, and a manual review.
func demoCases() []mergekit.ConflictCase {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).UnixMilli()

	return []mergekit.ConflictCase{
		{
			ID:         "note-12",
			EntityType: "note",
			Local: record.MustRecord(map[string]any{
				"id":   "note-12",
				"body": "buy oat milk",
			}),
			Remote: record.MustRecord(map[string]any{
				"id":   "note-12",
				"body": "buy milk",
			}),
			LocalTimestamp:  base + 5_000,
			RemoteTimestamp: base + 2_000,
		},
		{
			ID:         "task-7",
			EntityType: "task",
			Ancestor: record.MustRecord(map[string]any{
				"id":       "task-7",
				"title":    "Ship it",
				"notes":    "draft",
				"quantity": 10,
				"tags":     []string{"backend", "q3"},
				"version":  3,
			}),
			Local: record.MustRecord(map[string]any{
				"id":       "task-7",
				"title":    "Ship it this sprint",
				"notes":    "reviewed by sam",
				"quantity": 12,
				"tags":     []string{"backend", "q3", "urgent"},
				"version":  4,
			}),
			Remote: record.MustRecord(map[string]any{
				"id":       "task-7",
				"title":    "Ship v2",
				"notes":    "approved",
				"quantity": 13,
				"tags":     []string{"backend", "q3", "release"},
				"version":  5,
			}),
			LocalTimestamp:  base + 8_000,
			RemoteTimestamp: base + 9_000,
			LocalVersion:    4,
			RemoteVersion:   5,
		},
		{
			ID:         "task-9",
			EntityType: "task",
			Local: record.MustRecord(map[string]any{
				"id":    "task-9",
				"title": "Rotate credentials",
				"done":  true,
			}),
			Remote:          nil, // deleted on the server
			LocalTimestamp:  base + 4_000,
			RemoteTimestamp: base + 3_000,
		},
		{
			ID:         "doc-3",
			EntityType: "document",
			Local: record.MustRecord(map[string]any{
				"id":    "doc-3",
				"title": "Q3 roadmap",
				"body":  "Focus on sync reliability.",
			}),
			Remote: record.MustRecord(map[string]any{
				"id":    "doc-3",
				"title": "Q3 roadmap (final)",
				"body":  "Focus on conflict tooling.",
			}),
			LocalTimestamp:  base + 6_000,
			RemoteTimestamp: base + 6_500,
		},
	}
}

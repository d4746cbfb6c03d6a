package mergekit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Havanyani/go-merge-kit/record"
)

func TestRegistry_ConfigForUnregistered(t *testing.T) {
	reg := NewRegistry()
	cfg := reg.ConfigFor("never-seen")

	if cfg.DefaultStrategy != StrategyRemoteWins {
		t.Fatalf("default strategy must be remote_wins, got %s", cfg.DefaultStrategy)
	}
	if len(cfg.FieldStrategies) != 0 {
		t.Fatalf("default config must carry no field strategies, got %v", cfg.FieldStrategies)
	}
	if cfg.ArrayStrategy != ArrayReplace {
		t.Fatalf("default array policy must be replace, got %s", cfg.ArrayStrategy)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("task", ResolutionConfig{DefaultStrategy: StrategyMerge}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cfg := reg.ConfigFor("task")
	if cfg.DefaultStrategy != StrategyMerge {
		t.Fatalf("expected merge, got %s", cfg.DefaultStrategy)
	}
}

// Re-registering a type replaces the whole configuration; nothing from the
// old one survives.
func TestRegistry_RegisterOverwritesWholesale(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("task", ResolutionConfig{
		DefaultStrategy: StrategyMerge,
		FieldStrategies: map[string]FieldStrategy{"notes": {Kind: FieldConcatenate}},
		VersionField:    "version",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("task", ResolutionConfig{DefaultStrategy: StrategyLocalWins}); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	cfg := reg.ConfigFor("task")
	if cfg.DefaultStrategy != StrategyLocalWins {
		t.Fatalf("expected local_wins, got %s", cfg.DefaultStrategy)
	}
	if len(cfg.FieldStrategies) != 0 {
		t.Fatalf("old field strategies must not survive, got %v", cfg.FieldStrategies)
	}
	if cfg.VersionField != "" {
		t.Fatalf("old version field must not survive, got %q", cfg.VersionField)
	}
}

func TestRegistry_RejectsEmptyEntityType(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("", ResolutionConfig{}); err == nil {
		t.Fatal("expected error for empty entity type")
	}
}

func TestRegistry_RejectsCustomWithoutMerger(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register("task", ResolutionConfig{
		DefaultStrategy: StrategyMerge,
		FieldStrategies: map[string]FieldStrategy{"title": {Kind: FieldCustom}},
	})
	if err == nil {
		t.Fatal("expected error for custom strategy without merger")
	}
}

func TestRegistry_Mergers(t *testing.T) {
	reg := NewRegistry()
	m := FieldMergerFunc(func(local, remote record.Value, mctx MergeContext) (record.Value, error) {
		return local, nil
	})

	if err := reg.RegisterMerger("prefer_local", m); err != nil {
		t.Fatalf("RegisterMerger failed: %v", err)
	}
	if _, ok := reg.MergerFor("prefer_local"); !ok {
		t.Fatal("expected registered merger found")
	}
	if _, ok := reg.MergerFor("unknown"); ok {
		t.Fatal("expected unknown merger not found")
	}

	if err := reg.RegisterMerger("", m); err == nil {
		t.Fatal("expected error for empty merger name")
	}
	if err := reg.RegisterMerger("nil", nil); err == nil {
		t.Fatal("expected error for nil merger")
	}
}

func TestRegistry_EntityTypes(t *testing.T) {
	reg := NewRegistry()
	for _, typ := range []string{"task", "contact", "note"} {
		if err := reg.Register(typ, ResolutionConfig{}); err != nil {
			t.Fatalf("Register(%q) failed: %v", typ, err)
		}
	}

	got := reg.EntityTypes()
	want := []string{"contact", "note", "task"}
	if len(got) != len(want) {
		t.Fatalf("EntityTypes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EntityTypes = %v, want %v", got, want)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = reg.Register(fmt.Sprintf("type-%d", n), ResolutionConfig{DefaultStrategy: StrategyMerge})
		}(i)
		go func(n int) {
			defer wg.Done()
			_ = reg.ConfigFor(fmt.Sprintf("type-%d", n))
		}(i)
	}
	wg.Wait()

	if len(reg.EntityTypes()) != 8 {
		t.Fatalf("expected 8 registered types, got %v", reg.EntityTypes())
	}
}

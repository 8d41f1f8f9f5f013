package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate(StageComplete, map[string]interface{}{
		"run_id":     "r1",
		"ticker":     "SPY",
		"stage":      "features",
		"elapsed_ms": int64(12),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate(RunComplete, map[string]interface{}{
		"run_id": "r1",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if err := Validate("unregistered", nil); err != nil {
		t.Fatalf("unregistered events should pass: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	want := []string{ConfigReload, RunComplete, RunFailed, StageComplete}
	if len(names) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}
	if s, ok := Lookup(RunFailed); !ok || s.Event != RunFailed {
		t.Fatalf("run_failed schema not found")
	}
}

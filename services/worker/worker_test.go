package worker

import (
	"testing"

	"github.com/google/uuid"
)

func TestRunStatusFor(t *testing.T) {
	cases := []struct {
		name     string
		status   string
		want     string
		terminal bool
	}{
		{"ready closes as success", "ready", runStatusSuccess, true},
		{"deployed closes as success", "deployed", runStatusSuccess, true},
		{"broken closes as failure", "broken", runStatusFailed, true},
		{"mixed case", "Deployed", runStatusSuccess, true},
		{"padded", "  ready ", runStatusSuccess, true},
		{"commissioning is not terminal", "commissioning", "", false},
		{"disk erasing is not terminal", "disk_erasing", "", false},
		{"empty is not terminal", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, terminal := runStatusFor(tc.status)
			if got != tc.want || terminal != tc.terminal {
				t.Fatalf("runStatusFor(%q) = (%q, %v), want (%q, %v)", tc.status, got, terminal, tc.want, tc.terminal)
			}
		})
	}
}

func TestActiveRunTracking(t *testing.T) {
	sm := &StateMachine{activeRuns: make(map[uuid.UUID]uuid.UUID)}
	machineID := uuid.New()
	runID := uuid.New()

	if _, ok := sm.getActiveRun(machineID); ok {
		t.Fatal("expected no active run initially")
	}

	sm.setActiveRun(machineID, runID)
	got, ok := sm.getActiveRun(machineID)
	if !ok || got != runID {
		t.Fatalf("getActiveRun = (%v, %v), want (%v, true)", got, ok, runID)
	}

	// A stale clear for a different run must not drop the current one.
	sm.clearActiveRun(machineID, uuid.New())
	if _, ok := sm.getActiveRun(machineID); !ok {
		t.Fatal("clear with mismatched run id dropped the active run")
	}

	sm.clearActiveRun(machineID, runID)
	if _, ok := sm.getActiveRun(machineID); ok {
		t.Fatal("expected active run to be cleared")
	}
}

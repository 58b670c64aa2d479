// Package worker tracks provisioning runs. It turns machine lifecycle events
// published by the metadata service into runs rows: enrollment opens a run,
// terminal machine statuses close it.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"hatchd/pkg/bus"
)

// StateMachine coordinates provisioning runs in response to machine
// lifecycle events.
type StateMachine struct {
	orm *gorm.DB
	bus *bus.Bus

	activeMu   sync.RWMutex
	activeRuns map[uuid.UUID]uuid.UUID

	subsMu sync.Mutex
	subs   []io.Closer
}

// NewStateMachine creates a state machine bound to the provided dependencies.
func NewStateMachine(orm *gorm.DB, b *bus.Bus) (*StateMachine, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}

	return &StateMachine{
		orm:        orm,
		bus:        b,
		activeRuns: make(map[uuid.UUID]uuid.UUID),
	}, nil
}

// Start registers NATS subscriptions and begins processing events.
func (sm *StateMachine) Start(ctx context.Context) error {
	if sm == nil {
		return errors.New("nil state machine")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	specs := []struct {
		subject string
		durable string
		handler func(context.Context, []byte) error
	}{
		{bus.SubjectMachineEnrolled, "worker-machines", sm.handleMachineEnrolled},
		{bus.SubjectMachineStatus, "worker-status", sm.handleMachineStatus},
		{bus.SubjectRunStarted, "worker-runs-started", sm.handleRunStarted},
		{bus.SubjectRunFinished, "worker-runs-finished", sm.handleRunFinished},
	}

	for _, spec := range specs {
		closer, err := sm.bus.Subscribe(ctx, spec.subject, spec.durable, spec.handler)
		if err != nil {
			sm.Close()
			return err
		}
		sm.subsMu.Lock()
		sm.subs = append(sm.subs, closer)
		sm.subsMu.Unlock()
	}

	return nil
}

// Close tears down active subscriptions.
func (sm *StateMachine) Close() error {
	if sm == nil {
		return nil
	}

	sm.subsMu.Lock()
	defer sm.subsMu.Unlock()

	var firstErr error
	for _, sub := range sm.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sm.subs = nil
	return firstErr
}

func (sm *StateMachine) handleMachineEnrolled(ctx context.Context, data []byte) error {
	var evt machineEnrolledEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.MachineID == uuid.Nil {
		return errors.New("machine_id missing from enrollment event")
	}

	if runID, ok := sm.getActiveRun(evt.MachineID); ok && runID != uuid.Nil {
		return nil
	}

	var existing runModel
	err := sm.orm.WithContext(ctx).
		Where("machine_id = ? AND status = ?", evt.MachineID, runStatusRunning).
		Order("started_at DESC").
		First(&existing).Error
	switch {
	case err == nil:
		sm.setActiveRun(evt.MachineID, existing.ID)
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	runID := uuid.New()
	startedAt := time.Now().UTC()
	machineID := evt.MachineID
	run := runModel{
		ID:        runID,
		MachineID: &machineID,
		Status:    runStatusRunning,
		StartedAt: &startedAt,
	}
	if err := sm.orm.WithContext(ctx).Create(&run).Error; err != nil {
		return err
	}

	sm.setActiveRun(evt.MachineID, runID)

	payload := map[string]any{
		"run_id":     runID,
		"machine_id": evt.MachineID,
		"status":     runStatusRunning,
		"started_at": startedAt,
	}

	return sm.bus.Publish(ctx, bus.SubjectRunStarted, payload)
}

func (sm *StateMachine) handleMachineStatus(ctx context.Context, data []byte) error {
	var evt machineStatusEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.MachineID == uuid.Nil {
		return errors.New("machine_id missing from status event")
	}

	runStatus, terminal := runStatusFor(evt.Status)
	if !terminal {
		return nil
	}

	runID, ok := sm.getActiveRun(evt.MachineID)
	if !ok {
		var run runModel
		err := sm.orm.WithContext(ctx).
			Where("machine_id = ? AND status = ?", evt.MachineID, runStatusRunning).
			Order("started_at DESC").
			First(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		runID = run.ID
		sm.setActiveRun(evt.MachineID, runID)
	}
	if runID == uuid.Nil {
		return nil
	}

	finishedAt := time.Now().UTC()
	updates := map[string]any{
		"status":      runStatus,
		"finished_at": finishedAt,
	}
	if err := sm.orm.WithContext(ctx).
		Model(&runModel{}).
		Where("id = ?", runID).
		Updates(updates).Error; err != nil {
		return err
	}

	sm.clearActiveRun(evt.MachineID, runID)

	payload := map[string]any{
		"run_id":      runID,
		"machine_id":  evt.MachineID,
		"status":      runStatus,
		"finished_at": finishedAt,
	}

	return sm.bus.Publish(ctx, bus.SubjectRunFinished, payload)
}

func (sm *StateMachine) handleRunStarted(ctx context.Context, data []byte) error {
	var evt runLifecycleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.MachineID == uuid.Nil || evt.RunID == uuid.Nil {
		return nil
	}
	if strings.EqualFold(evt.Status, runStatusRunning) {
		sm.setActiveRun(evt.MachineID, evt.RunID)
	}
	return nil
}

func (sm *StateMachine) handleRunFinished(ctx context.Context, data []byte) error {
	var evt runLifecycleEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	if evt.MachineID == uuid.Nil || evt.RunID == uuid.Nil {
		return nil
	}
	sm.clearActiveRun(evt.MachineID, evt.RunID)
	return nil
}

func (sm *StateMachine) setActiveRun(machineID, runID uuid.UUID) {
	sm.activeMu.Lock()
	defer sm.activeMu.Unlock()
	if sm.activeRuns == nil {
		sm.activeRuns = make(map[uuid.UUID]uuid.UUID)
	}
	sm.activeRuns[machineID] = runID
}

func (sm *StateMachine) clearActiveRun(machineID, runID uuid.UUID) {
	sm.activeMu.Lock()
	defer sm.activeMu.Unlock()
	if current, ok := sm.activeRuns[machineID]; ok && current == runID {
		delete(sm.activeRuns, machineID)
	}
}

func (sm *StateMachine) getActiveRun(machineID uuid.UUID) (uuid.UUID, bool) {
	sm.activeMu.RLock()
	defer sm.activeMu.RUnlock()
	runID, ok := sm.activeRuns[machineID]
	return runID, ok
}

// runStatusFor maps a machine lifecycle status onto a run outcome. Only
// terminal machine statuses close a run.
func runStatusFor(machineStatus string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(machineStatus)) {
	case "ready", "deployed":
		return runStatusSuccess, true
	case "broken":
		return runStatusFailed, true
	default:
		return "", false
	}
}

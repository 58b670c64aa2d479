package worker

import "github.com/google/uuid"

type machineEnrolledEvent struct {
	MachineID uuid.UUID `json:"machine_id"`
	SystemID  string    `json:"system_id"`
}

type machineStatusEvent struct {
	MachineID uuid.UUID `json:"machine_id"`
	SystemID  string    `json:"system_id"`
	Status    string    `json:"status"`
}

type runLifecycleEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	MachineID uuid.UUID `json:"machine_id"`
	Status    string    `json:"status"`
}

package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReactivationSweep = "reactivation.sweep"

type ReactivationSweepPayload struct {
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewReactivationSweepTask(payload ReactivationSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReactivationSweep, data), nil
}

func ParseReactivationSweepPayload(task *asynq.Task) (ReactivationSweepPayload, error) {
	var payload ReactivationSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReactivationSweepPayload{}, err
	}
	return payload, nil
}

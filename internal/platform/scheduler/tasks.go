package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskScan = "groupkeeper.scan"
	TaskAdd  = "groupkeeper.add"
)

// PassPayload identifies who asked for a producer pass.
type PassPayload struct {
	Trigger     string    `json:"trigger"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func NewPassTask(taskType, trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(PassPayload{Trigger: trigger, ScheduledAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func ParsePassPayload(task *asynq.Task) (PassPayload, error) {
	var payload PassPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PassPayload{}, err
	}
	return payload, nil
}

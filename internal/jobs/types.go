package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskInvalidate = "cache:invalidate"
	QueueCache     = "cache"
)

type InvalidatePayload struct {
	UserID string   `json:"user_id"`
	Keys   []string `json:"keys,omitempty"`
}

// NewInvalidateTask builds a task that drops keys from a user's cache once
// it runs. An empty key list clears the user's whole cache.
func NewInvalidateTask(userID string, keys []string, delay time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(InvalidatePayload{UserID: userID, Keys: keys})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvalidate, payload,
		asynq.Queue(QueueCache),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
	), nil
}

// Enqueuer is the subset of *asynq.Client used to schedule tasks
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypePublishPost publishes one specific queued post.
	TypePublishPost = "post:publish"

	// TypePublishNext drains the next image from the local library. The
	// scheduler emits one of these per interval; the payload is empty.
	TypePublishNext = "post:publish_next"
)

type PublishPostPayload struct {
	PostID      string    `json:"post_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewPublishPostTask(payload PublishPostPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal publish payload: %w", err)
	}
	return asynq.NewTask(TypePublishPost, body), nil
}

func ParsePublishPostPayload(task *asynq.Task) (PublishPostPayload, error) {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PublishPostPayload{}, fmt.Errorf("unmarshal publish payload: %w", err)
	}
	return payload, nil
}

func NewPublishNextTask() *asynq.Task {
	return asynq.NewTask(TypePublishNext, nil)
}

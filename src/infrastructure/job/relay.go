package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// JobsTopic is the topic job notifications are published on.
const JobsTopic = "jobs"

// JobMessage is the relay wire format. It carries only the id; workers
// always re-read the record from the store.
type JobMessage struct {
	JobID    int64  `json:"job_id"`
	TaskType string `json:"task_type"`
}

// RelayPublisher dispatches jobs to remote workers through a message broker.
type RelayPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewRelayPublisher(publisher message.Publisher) *RelayPublisher {
	return &RelayPublisher{
		publisher: publisher,
		topic:     JobsTopic,
	}
}

func (p *RelayPublisher) Dispatch(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(JobMessage{JobID: job.ID, TaskType: job.TaskType})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	return nil
}

// RelayConsumer feeds job ids received from the broker into a local queue.
type RelayConsumer struct {
	queue  Enqueuer
	logger watermill.LoggerAdapter
}

func NewRelayConsumer(queue Enqueuer, logger watermill.LoggerAdapter) *RelayConsumer {
	return &RelayConsumer{
		queue:  queue,
		logger: logger,
	}
}

// Register adds the consumer as a handler on router.
func (c *RelayConsumer) Register(router *message.Router, subscriber message.Subscriber) {
	router.AddNoPublisherHandler(
		"job_relay",
		JobsTopic,
		subscriber,
		c.Handle,
	)
}

// Handle decodes one relay message. A malformed message is acked and dropped:
// redelivering it could never succeed.
func (c *RelayConsumer) Handle(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		c.logger.Error("Dropping malformed job message", err, watermill.LogFields{
			"message_uuid": msg.UUID,
		})
		return nil
	}

	c.queue.Enqueue(jobMsg.JobID)
	c.logger.Debug("Job relayed to local queue", watermill.LogFields{
		"job_id":    jobMsg.JobID,
		"task_type": jobMsg.TaskType,
	})
	return nil
}

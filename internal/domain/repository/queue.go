package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hszk-dev/lumina/internal/domain/model"
)

// ProcessTask is the job message asking a worker to run the image pipeline
// for one uploaded original.
type ProcessTask struct {
	PhotoID     uuid.UUID             `json:"photo_id"`
	OriginalKey string                `json:"original_key"`
	OutputKey   string                `json:"output_key"`
	Rotation    *int                  `json:"rotation,omitempty"`
	StylePreset string                `json:"style_preset,omitempty"`
	Watermark   model.WatermarkConfig `json:"watermark"`
	RetryCount  int                   `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
type MessageQueue interface {
	// PublishProcessTask sends a processing task to the queue.
	PublishProcessTask(ctx context.Context, task ProcessTask) error

	// ConsumeProcessTasks blocks, calling handler for each received task,
	// until ctx is cancelled or the broker closes the delivery channel.
	ConsumeProcessTasks(ctx context.Context, handler func(task ProcessTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}

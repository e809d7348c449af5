package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/pkg/logger"
)

const (
	TaskTypeLectureProcess  = "lecture:process"
	TaskTypeLectureEstimate = "lecture:estimate"
	TaskTypeLectureFetch    = "lecture:fetch"
)

// Queue names by urgency. Fetch blocks a pipeline from even starting, so
// it outranks processing; estimates are advisory and run last.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueuePriorities is the asynq weight map shared by worker servers.
var QueuePriorities = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// ProcessPayload starts the full pipeline for one lecture.
type ProcessPayload struct {
	LectureID int64 `json:"lecture_id"`
}

// EstimatePayload computes and stores the lecture's expected duration.
type EstimatePayload struct {
	LectureID int64 `json:"lecture_id"`
}

// FetchPayload downloads remote audio into object storage, then chains
// into processing.
type FetchPayload struct {
	LectureID int64  `json:"lecture_id"`
	SourceURL string `json:"source_url"`
}

// TaskState is the queue-side view of a lecture task, served from a redis
// cache with the asynq inspector as fallback.
type TaskState struct {
	TaskID     string    `json:"task_id"`
	State      string    `json:"state"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Client enqueues lecture tasks and answers queue-state lookups.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	timeout   time.Duration
	log       logger.Logger
}

func NewClient(cfg *config.RedisConfig, pcfg *config.PipelineConfig, log logger.Logger) *Client {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Addr, DB: cfg.DB}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB}),
		timeout:   time.Duration(pcfg.ProcessTimeoutMin) * time.Minute,
		log:       log.Named("queue"),
	}
}

// EnqueueProcess queues the pipeline run for a lecture. One task per
// lecture; a failed run is restarted by a new upload, never by asynq
// retrying a half-finished pipeline.
func (c *Client) EnqueueProcess(ctx context.Context, lectureID int64) (string, error) {
	return c.enqueue(ctx, TaskTypeLectureProcess, ProcessPayload{LectureID: lectureID},
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
		asynq.TaskID(fmt.Sprintf("%s:%d", TaskTypeLectureProcess, lectureID)),
	)
}

// EnqueueEstimate queues the ETA computation. Idempotent, so a couple of
// retries are safe.
func (c *Client) EnqueueEstimate(ctx context.Context, lectureID int64) (string, error) {
	return c.enqueue(ctx, TaskTypeLectureEstimate, EstimatePayload{LectureID: lectureID},
		asynq.Queue(QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	)
}

// EnqueueFetch queues the remote-audio download that precedes processing.
func (c *Client) EnqueueFetch(ctx context.Context, lectureID int64, sourceURL string) (string, error) {
	return c.enqueue(ctx, TaskTypeLectureFetch, FetchPayload{LectureID: lectureID, SourceURL: sourceURL},
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.TaskID(fmt.Sprintf("%s:%d", TaskTypeLectureFetch, lectureID)),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", taskType, err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	c.cacheState(ctx, &TaskState{
		TaskID:     info.ID,
		State:      "queued",
		EnqueuedAt: time.Now(),
	})

	c.log.Info("task enqueued",
		logger.String("type", taskType),
		logger.String("task_id", info.ID),
		logger.String("queue", info.Queue))
	return info.ID, nil
}

// TaskState returns the queue-side state of a task: the redis cache first,
// then an inspector scan across the queues.
func (c *Client) TaskState(ctx context.Context, taskID string) (*TaskState, error) {
	data, err := c.redis.Get(ctx, stateKey(taskID)).Bytes()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read task state cache: %w", err)
	}
	if err == nil {
		var state TaskState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("unmarshal cached task state: %w", err)
		}
		return &state, nil
	}

	var info *asynq.TaskInfo
	var lastErr error
	for name := range QueuePriorities {
		info, lastErr = c.inspector.GetTaskInfo(name, taskID)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("task %s not found in any queue: %w", taskID, lastErr)
	}

	state := convertTaskInfo(info)
	c.cacheState(ctx, state)
	return state, nil
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.redis.Close()
}

func (c *Client) cacheState(ctx context.Context, state *TaskState) {
	data, err := json.Marshal(state)
	if err != nil {
		c.log.Warn("task state marshal failed", logger.Error(err))
		return
	}
	if err := c.redis.Set(ctx, stateKey(state.TaskID), data, 24*time.Hour).Err(); err != nil {
		c.log.Warn("task state cache write failed",
			logger.String("task_id", state.TaskID),
			logger.Error(err))
	}
}

func stateKey(taskID string) string {
	return "task_state:" + taskID
}

func convertTaskInfo(info *asynq.TaskInfo) *TaskState {
	state := &TaskState{TaskID: info.ID}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		state.State = "queued"
	case asynq.TaskStateActive:
		state.State = "running"
	case asynq.TaskStateCompleted:
		state.State = "completed"
	case asynq.TaskStateRetry:
		state.State = "retrying"
		state.LastError = info.LastErr
	case asynq.TaskStateArchived:
		state.State = "failed"
		state.LastError = info.LastErr
	default:
		state.State = info.State.String()
	}
	return state
}

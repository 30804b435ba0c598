package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trustcompute/pkg/config"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeWorkOrderProcess = "work_order:process"

	queueName = "default"
)

// WorkOrderPayload payload of a work_order:process task
type WorkOrderPayload struct {
	WorkOrderID string `json:"workOrderId"`
}

// ProcessFunc processes one scheduled work order
type ProcessFunc func(ctx context.Context, workOrderID string) error

// Manager queue manager waking processors for newly scheduled work orders
type Manager struct {
	redisOpt asynq.RedisClientOpt
	queueCfg config.QueueConfig
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
}

var _ interfaces.WorkOrderDispatcher = (*Manager)(nil)

// NewManager creates queue manager
func NewManager(redisCfg config.RedisConfig, queueCfg config.QueueConfig) (*Manager, error) {
	if !redisCfg.Enabled() {
		return nil, errors.New("queue requires redis.addr")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: queueCfg.Concurrency,
			Queues: map[string]int{
				queueName: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	return &Manager{
		redisOpt: redisOpt,
		queueCfg: queueCfg,
		client:   asynq.NewClient(redisOpt),
		server:   server,
		mux:      asynq.NewServeMux(),
	}, nil
}

// NewWorkOrderTask builds the task for workOrderID
func NewWorkOrderTask(workOrderID string) (*asynq.Task, error) {
	payload, err := json.Marshal(WorkOrderPayload{WorkOrderID: workOrderID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeWorkOrderProcess, payload), nil
}

// ParseWorkOrderTask extracts the work order id from a task
func ParseWorkOrderTask(task *asynq.Task) (string, error) {
	var payload WorkOrderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", TypeWorkOrderProcess, err)
	}
	if payload.WorkOrderID == "" {
		return "", fmt.Errorf("%s payload has no workOrderId", TypeWorkOrderProcess)
	}
	return payload.WorkOrderID, nil
}

// Dispatch enqueues a processing task; a task already queued for the id is coalesced
func (m *Manager) Dispatch(ctx context.Context, workOrderID string) error {
	task, err := NewWorkOrderTask(workOrderID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID("wo-" + workOrderID),
		asynq.Timeout(time.Duration(m.queueCfg.TaskTimeout) * time.Second),
		asynq.MaxRetry(m.queueCfg.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logger.DebugCtx(ctx, "work order %s already queued", workOrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue work order %s: %w", workOrderID, err)
	}

	logger.DebugCtx(ctx, "work order enqueued, work_order_id: %s, queue: %s", workOrderID, info.Queue)
	return nil
}

// ProcessHandler adapts fn to an asynq handler
func ProcessHandler(fn ProcessFunc) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		workOrderID, err := ParseWorkOrderTask(task)
		if err != nil {
			// a malformed payload never succeeds on retry
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fn(ctx, workOrderID)
	}
}

// RegisterProcessor routes work_order:process tasks to fn
func (m *Manager) RegisterProcessor(fn ProcessFunc) {
	m.mux.Handle(TypeWorkOrderProcess, ProcessHandler(fn))
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client
func (m *Manager) Close() error {
	return m.client.Close()
}

// PendingCount returns the number of queued work-order tasks
func (m *Manager) PendingCount() (int, error) {
	inspector := asynq.NewInspector(m.redisOpt)
	defer inspector.Close()

	stats, err := inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return stats.Pending, nil
}

package main

import (
	"context"
	"errors"
	"time"

	"trustcompute/internal/jobs"
	"trustcompute/internal/processor"
	"trustcompute/internal/service"
	"trustcompute/pkg/lock"
	"trustcompute/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const processorJobName = "work-order-processor"

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// Register the processor poll; submissions also trigger it through jobDispatcher
	manager.Register(newProcessorJob(app.config.Enclave.PollInterval, app.processor))

	if app.syncService != nil {
		// Without Redis the lock downgrades to single-instance mode
		var redisClient *redis.Client
		if app.redisClient != nil {
			redisClient = app.redisClient.GetClient()
		}
		syncLock := lock.NewRedisLock(redisClient, lock.RegistrySyncKey)
		manager.Register(newRegistrySyncJob(app.config.Chain.SyncInterval, app.syncService, app.workerService,
			app.config.Enclave.OrganizationID, syncLock))
	}

	app.jobsManager = manager
	return nil
}

// jobDispatcher wakes the in-process processor job when no queue is configured
type jobDispatcher struct {
	manager *jobs.Manager
}

func (d *jobDispatcher) Dispatch(ctx context.Context, workOrderID string) error {
	d.manager.Trigger(processorJobName)
	return nil
}

// processorJob drains wo-scheduled.
type processorJob struct {
	interval  time.Duration
	processor *processor.Processor
}

func newProcessorJob(interval time.Duration, p *processor.Processor) jobs.Job {
	return &processorJob{interval: interval, processor: p}
}

func (j *processorJob) Name() string { return processorJobName }

func (j *processorJob) Interval() time.Duration { return j.interval }

func (j *processorJob) Run(ctx context.Context) error {
	processed, err := j.processor.ProcessPending(ctx)
	if processed > 0 {
		logger.DebugCtx(ctx, "processed %d work orders", processed)
	}
	return err
}

// registrySyncJob reconciles the off-chain worker directory with the chain.
type registrySyncJob struct {
	interval        time.Duration
	syncService     *service.SyncService
	workerService   *service.WorkerService
	organizationID  string
	distributedLock lock.Locker
}

func newRegistrySyncJob(interval time.Duration, sync *service.SyncService, workers *service.WorkerService, organizationID string, l lock.Locker) jobs.Job {
	return &registrySyncJob{
		interval:        interval,
		syncService:     sync,
		workerService:   workers,
		organizationID:  organizationID,
		distributedLock: l,
	}
}

func (j *registrySyncJob) Name() string { return "registry-sync" }

func (j *registrySyncJob) Interval() time.Duration { return j.interval }

func (j *registrySyncJob) Run(ctx context.Context) error {
	err := lock.WithLock(ctx, j.distributedLock, func(ctx context.Context) error {
		logger.DebugCtx(ctx, "running registry sync job")
		if err := j.syncService.SyncWorkers(ctx); err != nil {
			return err
		}
		if j.organizationID == "" {
			return nil
		}
		registry, err := j.workerService.RetrieveRegistry(ctx, j.organizationID)
		if err != nil {
			return err
		}
		return j.syncService.SyncRegistry(ctx, registry)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.DebugCtx(ctx, "another instance is running registry sync, skipping this cycle")
		return nil
	}
	return err
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"trustcompute/internal/model"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"
)

// syncedWorker last details/status successfully written on chain
type syncedWorker struct {
	details string
	status  model.WorkerStatus
}

// SyncService reconciles the off-chain worker directory with the chain registry
type SyncService struct {
	workers *WorkerService
	chain   interfaces.ChainRegistry

	mu    sync.Mutex
	cache map[string]*syncedWorker
}

// NewSyncService creates a new sync service
func NewSyncService(workers *WorkerService, chain interfaces.ChainRegistry) *SyncService {
	return &SyncService{
		workers: workers,
		chain:   chain,
		cache:   make(map[string]*syncedWorker),
	}
}

// SyncWorkers runs one reconciliation pass. Individual failures are logged and
// returned joined; the next pass retries them.
func (s *SyncService) SyncWorkers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	localIDs, err := s.workers.AllIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local workers: %w", err)
	}
	chainIDs, err := s.chain.WorkerLookUp(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chain workers: %w", err)
	}

	onChain := make(map[string]bool, len(chainIDs))
	for _, id := range chainIDs {
		onChain[id] = true
	}
	local := make(map[string]bool, len(localIDs))

	var errs []error
	for _, id := range localIDs {
		local[id] = true
		worker, found, err := s.workers.Get(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !found {
			continue
		}
		if onChain[id] {
			err = s.updateWorker(ctx, worker)
		} else {
			err = s.registerWorker(ctx, worker)
		}
		if err != nil {
			logger.WarnCtx(ctx, "worker %s sync failed, retry next cycle: %v", id, err)
			errs = append(errs, err)
		}
	}

	for _, id := range chainIDs {
		if local[id] {
			continue
		}
		if err := s.decommissionWorker(ctx, id); err != nil {
			logger.WarnCtx(ctx, "worker %s decommission failed, retry next cycle: %v", id, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *SyncService) registerWorker(ctx context.Context, worker *model.Worker) error {
	details := compactDetails(worker.Details)
	if err := s.chain.WorkerRegister(ctx, worker); err != nil {
		return fmt.Errorf("register %s: %w", worker.WorkerID, err)
	}
	// registration does not imply a status on chain. Until activation succeeds the
	// cached details stay empty so the next pass pushes an update followed by ACTIVE.
	entry := &syncedWorker{}
	s.cache[worker.WorkerID] = entry

	if err := s.chain.WorkerSetStatus(ctx, worker.WorkerID, model.WorkerStatusActive); err != nil {
		return fmt.Errorf("activate %s: %w", worker.WorkerID, err)
	}
	entry.details = details
	entry.status = model.WorkerStatusActive
	logger.InfoCtx(ctx, "worker %s registered on chain", worker.WorkerID)
	return nil
}

func (s *SyncService) updateWorker(ctx context.Context, worker *model.Worker) error {
	entry, err := s.cached(ctx, worker.WorkerID)
	if err != nil {
		return err
	}

	details := compactDetails(worker.Details)
	if entry.details != details {
		if err := s.chain.WorkerUpdate(ctx, worker.WorkerID, details); err != nil {
			return fmt.Errorf("update %s: %w", worker.WorkerID, err)
		}
		entry.details = details
		logger.InfoCtx(ctx, "worker %s details updated on chain", worker.WorkerID)

		if entry.status != model.WorkerStatusActive {
			if err := s.chain.WorkerSetStatus(ctx, worker.WorkerID, model.WorkerStatusActive); err != nil {
				return fmt.Errorf("activate %s: %w", worker.WorkerID, err)
			}
			entry.status = model.WorkerStatusActive
		}
	}
	return nil
}

func (s *SyncService) decommissionWorker(ctx context.Context, workerID string) error {
	entry, err := s.cached(ctx, workerID)
	if err != nil {
		return err
	}
	if entry.status == model.WorkerStatusDecommissioned {
		return nil
	}
	if err := s.chain.WorkerSetStatus(ctx, workerID, model.WorkerStatusDecommissioned); err != nil {
		return fmt.Errorf("decommission %s: %w", workerID, err)
	}
	entry.status = model.WorkerStatusDecommissioned
	logger.InfoCtx(ctx, "worker %s decommissioned on chain", workerID)
	return nil
}

// cached returns the cache entry for a worker already on chain, seeding it from the chain record
func (s *SyncService) cached(ctx context.Context, workerID string) (*syncedWorker, error) {
	if entry, ok := s.cache[workerID]; ok {
		return entry, nil
	}
	record, err := s.chain.WorkerRetrieve(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", workerID, err)
	}
	entry := &syncedWorker{details: compactDetails(record.Details), status: record.Status}
	s.cache[workerID] = entry
	return entry, nil
}

// SyncRegistry publishes this listener's registry entry, adding or updating it as needed
func (s *SyncService) SyncRegistry(ctx context.Context, registry *model.Registry) error {
	if registry == nil || registry.OrganizationID == "" {
		return nil
	}
	existing, err := s.chain.RegistryRetrieve(ctx, registry.OrganizationID)
	switch {
	case errors.Is(err, interfaces.ErrChainRecordNotFound):
		if err := s.chain.RegistryAdd(ctx, registry); err != nil {
			return fmt.Errorf("add registry %s: %w", registry.OrganizationID, err)
		}
		logger.InfoCtx(ctx, "registry %s added on chain", registry.OrganizationID)
		return nil
	case err != nil:
		return fmt.Errorf("retrieve registry %s: %w", registry.OrganizationID, err)
	}

	if sameRegistry(existing, registry) {
		return nil
	}
	if err := s.chain.RegistryUpdate(ctx, registry); err != nil {
		return fmt.Errorf("update registry %s: %w", registry.OrganizationID, err)
	}
	logger.InfoCtx(ctx, "registry %s updated on chain", registry.OrganizationID)
	return nil
}

func sameRegistry(a, b *model.Registry) bool {
	left, _ := json.Marshal(a)
	right, _ := json.Marshal(b)
	return bytes.Equal(left, right)
}

func compactDetails(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

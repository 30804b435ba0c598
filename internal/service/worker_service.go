package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"trustcompute/internal/model"
	"trustcompute/internal/pagination"
	"trustcompute/pkg/constants"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"
)

// WorkerService off-chain worker and registry directory over the workers and registries tables
type WorkerService struct {
	kv         interfaces.KeyValueStore
	workers    *pagination.Paginator
	registries *pagination.Paginator

	// serialises read-modify-write of worker records
	mu sync.Mutex
}

// NewWorkerService creates a new worker service
func NewWorkerService(kv interfaces.KeyValueStore, pageSize int) *WorkerService {
	return &WorkerService{
		kv:         kv,
		workers:    pagination.New(kv, constants.TableWorkers, pageSize),
		registries: pagination.New(kv, constants.TableRegistries, pageSize),
	}
}

// Get returns the stored worker
func (s *WorkerService) Get(ctx context.Context, workerID string) (*model.Worker, bool, error) {
	raw, found, err := s.kv.Get(ctx, constants.TableWorkers, workerID)
	if err != nil || !found {
		return nil, false, err
	}
	var worker model.Worker
	if err := json.Unmarshal([]byte(raw), &worker); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal worker %s: %w", workerID, err)
	}
	return &worker, true, nil
}

// Exists reports whether a worker is registered
func (s *WorkerService) Exists(ctx context.Context, workerID string) (bool, error) {
	_, found, err := s.kv.Get(ctx, constants.TableWorkers, workerID)
	return found, err
}

func (s *WorkerService) save(ctx context.Context, worker *model.Worker) error {
	data, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker: %w", err)
	}
	return s.kv.Set(ctx, constants.TableWorkers, worker.WorkerID, string(data))
}

// Register adds a new worker with status ACTIVE
func (s *WorkerService) Register(ctx context.Context, params *model.WorkerRegisterParams) error {
	if !model.IsHex(params.WorkerID) {
		return model.InvalidParameter("workerId must be a hex string")
	}
	if !params.WorkerType.Valid() {
		return model.InvalidParameter("invalid workerType %d", int(params.WorkerType))
	}
	if params.OrganizationID != "" && !model.IsHex(params.OrganizationID) {
		return model.InvalidParameter("organizationId must be a hex string")
	}
	for _, id := range params.ApplicationTypeID {
		if !model.IsHex(id) {
			return model.InvalidParameter("applicationTypeId %q must be a hex string", id)
		}
	}
	details, err := compactObject(params.Details)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx, params.WorkerID)
	if err != nil {
		return err
	}
	if exists {
		return model.InvalidParameter("worker %s already registered", params.WorkerID)
	}

	worker := &model.Worker{
		WorkerID:          params.WorkerID,
		WorkerType:        params.WorkerType,
		OrganizationID:    params.OrganizationID,
		ApplicationTypeID: params.ApplicationTypeID,
		Details:           details,
		Status:            model.WorkerStatusActive,
	}
	if err := s.save(ctx, worker); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "worker registered, worker_id: %s, type: %d", worker.WorkerID, worker.WorkerType)
	return nil
}

// Update merges the given details keys into the worker's details
func (s *WorkerService) Update(ctx context.Context, params *model.WorkerUpdateParams) error {
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(params.Details, &patch); err != nil || patch == nil {
		return model.InvalidParameter("details must be a JSON object")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	worker, found, err := s.Get(ctx, params.WorkerID)
	if err != nil {
		return err
	}
	if !found {
		return model.InvalidParameter("worker %s not found", params.WorkerID)
	}

	merged := map[string]json.RawMessage{}
	if len(worker.Details) > 0 {
		if err := json.Unmarshal(worker.Details, &merged); err != nil || merged == nil {
			merged = map[string]json.RawMessage{}
		}
	}
	for key, value := range patch {
		merged[key] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	worker.Details = data
	return s.save(ctx, worker)
}

// SetStatus changes a worker's status
func (s *WorkerService) SetStatus(ctx context.Context, params *model.WorkerSetStatusParams) error {
	if !params.Status.Valid() {
		return model.InvalidParameter("invalid worker status %d", int(params.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	worker, found, err := s.Get(ctx, params.WorkerID)
	if err != nil {
		return err
	}
	if !found {
		return model.InvalidParameter("worker %s not found", params.WorkerID)
	}
	worker.Status = params.Status
	if err := s.save(ctx, worker); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "worker %s status set to %s", worker.WorkerID, worker.Status)
	return nil
}

// Retrieve returns a worker or INVALID_PARAMETER when it does not exist
func (s *WorkerService) Retrieve(ctx context.Context, workerID string) (*model.Worker, error) {
	worker, found, err := s.Get(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.InvalidParameter("worker %s not found", workerID)
	}
	return worker, nil
}

// AllIDs returns every registered worker id in store order
func (s *WorkerService) AllIDs(ctx context.Context) ([]string, error) {
	return s.kv.Lookup(ctx, constants.TableWorkers)
}

func workerFilter(params *model.WorkerLookUpParams) pagination.Filter {
	filter := pagination.Filter{}
	if params == nil {
		return filter
	}
	if params.WorkerType != nil {
		filter["workerType"] = *params.WorkerType
	}
	if params.OrganizationID != nil {
		filter["organizationId"] = *params.OrganizationID
	}
	if params.ApplicationTypeID != nil {
		filter["applicationTypeId"] = *params.ApplicationTypeID
	}
	return filter
}

// LookUp returns the first page of workers matching params
func (s *WorkerService) LookUp(ctx context.Context, params *model.WorkerLookUpParams) (*model.LookupResult, error) {
	return s.workers.LookUp(ctx, workerFilter(params))
}

// LookUpNext continues a worker lookup from params.LookupTag
func (s *WorkerService) LookUpNext(ctx context.Context, params *model.WorkerLookUpParams) (*model.LookupResult, error) {
	tag := ""
	if params != nil {
		tag = string(params.LookupTag)
	}
	return s.workers.LookUpNext(ctx, workerFilter(params), tag)
}

// RegistryOnBoot clears the registries table and writes this listener's own entry
func (s *WorkerService) RegistryOnBoot(ctx context.Context, registry *model.Registry) error {
	ids, err := s.kv.Lookup(ctx, constants.TableRegistries)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.kv.Remove(ctx, constants.TableRegistries, id); err != nil {
			return err
		}
	}
	if registry == nil || registry.OrganizationID == "" {
		return nil
	}
	data, err := json.Marshal(registry)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := s.kv.Set(ctx, constants.TableRegistries, registry.OrganizationID, string(data)); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "registry %s registered at %s", registry.OrganizationID, registry.URI)
	return nil
}

// RetrieveRegistry returns a registry entry or INVALID_PARAMETER when it does not exist
func (s *WorkerService) RetrieveRegistry(ctx context.Context, organizationID string) (*model.Registry, error) {
	raw, found, err := s.kv.Get(ctx, constants.TableRegistries, organizationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.InvalidParameter("registry %s not found", organizationID)
	}
	var registry model.Registry
	if err := json.Unmarshal([]byte(raw), &registry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry %s: %w", organizationID, err)
	}
	return &registry, nil
}

func registryFilter(params *model.RegistryLookUpParams) pagination.Filter {
	filter := pagination.Filter{}
	if params != nil && params.AppTypeID != nil {
		filter["appTypeIds"] = *params.AppTypeID
	}
	return filter
}

// LookUpRegistries returns the first page of registries
func (s *WorkerService) LookUpRegistries(ctx context.Context, params *model.RegistryLookUpParams) (*model.LookupResult, error) {
	return s.registries.LookUp(ctx, registryFilter(params))
}

// LookUpRegistriesNext continues a registry lookup
func (s *WorkerService) LookUpRegistriesNext(ctx context.Context, params *model.RegistryLookUpParams) (*model.LookupResult, error) {
	tag := ""
	if params != nil {
		tag = string(params.LookupTag)
	}
	return s.registries.LookUpNext(ctx, registryFilter(params), tag)
}

// compactObject validates a details blob as a JSON object and compacts it; empty means {}
func compactObject(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, model.InvalidParameter("details must be a JSON object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, model.InvalidParameter("details must be a JSON object")
	}
	return buf.Bytes(), nil
}

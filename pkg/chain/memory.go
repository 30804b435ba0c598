package chain

import (
	"context"
	"encoding/json"
	"sync"

	"trustcompute/internal/model"
	"trustcompute/pkg/interfaces"
)

// Call one write recorded by MemoryRegistry
type Call struct {
	Method   string
	WorkerID string
	Status   model.WorkerStatus
}

// Write methods recorded in Call.Method
const (
	MethodWorkerRegister  = "worker_register"
	MethodWorkerUpdate    = "worker_update"
	MethodWorkerSetStatus = "worker_set_status"
	MethodRegistryAdd     = "registry_add"
	MethodRegistryUpdate  = "registry_update"
)

// MemoryRegistry in-process chain registry, used when no chain node is configured and in tests
type MemoryRegistry struct {
	mu         sync.Mutex
	workers    map[string]*model.Worker
	order      []string
	registries map[string]*model.Registry
	calls      []Call
	failures   map[string]error
}

var _ interfaces.ChainRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		workers:    make(map[string]*model.Worker),
		registries: make(map[string]*model.Registry),
		failures:   make(map[string]error),
	}
}

// FailOn makes every call of method return err until cleared with a nil err
func (m *MemoryRegistry) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns the successful writes in order
func (m *MemoryRegistry) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ResetCalls clears the write log
func (m *MemoryRegistry) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MemoryRegistry) record(method, workerID string, status model.WorkerStatus) error {
	if err := m.failures[method]; err != nil {
		return err
	}
	m.calls = append(m.calls, Call{Method: method, WorkerID: workerID, Status: status})
	return nil
}

func (m *MemoryRegistry) WorkerRegister(ctx context.Context, worker *model.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MethodWorkerRegister, worker.WorkerID, worker.Status); err != nil {
		return err
	}
	if _, ok := m.workers[worker.WorkerID]; !ok {
		m.order = append(m.order, worker.WorkerID)
	}
	copied := *worker
	copied.Details = append(json.RawMessage(nil), worker.Details...)
	m.workers[worker.WorkerID] = &copied
	return nil
}

func (m *MemoryRegistry) WorkerUpdate(ctx context.Context, workerID string, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	worker, ok := m.workers[workerID]
	if !ok {
		return interfaces.ErrChainRecordNotFound
	}
	if err := m.record(MethodWorkerUpdate, workerID, worker.Status); err != nil {
		return err
	}
	worker.Details = json.RawMessage(details)
	return nil
}

func (m *MemoryRegistry) WorkerSetStatus(ctx context.Context, workerID string, status model.WorkerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	worker, ok := m.workers[workerID]
	if !ok {
		return interfaces.ErrChainRecordNotFound
	}
	if err := m.record(MethodWorkerSetStatus, workerID, status); err != nil {
		return err
	}
	worker.Status = status
	return nil
}

func (m *MemoryRegistry) WorkerLookUp(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func (m *MemoryRegistry) WorkerRetrieve(ctx context.Context, workerID string) (*model.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	worker, ok := m.workers[workerID]
	if !ok {
		return nil, interfaces.ErrChainRecordNotFound
	}
	copied := *worker
	return &copied, nil
}

func (m *MemoryRegistry) RegistryAdd(ctx context.Context, registry *model.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MethodRegistryAdd, registry.OrganizationID, registry.Status); err != nil {
		return err
	}
	copied := *registry
	m.registries[registry.OrganizationID] = &copied
	return nil
}

func (m *MemoryRegistry) RegistryUpdate(ctx context.Context, registry *model.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registries[registry.OrganizationID]; !ok {
		return interfaces.ErrChainRecordNotFound
	}
	if err := m.record(MethodRegistryUpdate, registry.OrganizationID, registry.Status); err != nil {
		return err
	}
	copied := *registry
	m.registries[registry.OrganizationID] = &copied
	return nil
}

func (m *MemoryRegistry) RegistryRetrieve(ctx context.Context, organizationID string) (*model.Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	registry, ok := m.registries[organizationID]
	if !ok {
		return nil, interfaces.ErrChainRecordNotFound
	}
	copied := *registry
	return &copied, nil
}

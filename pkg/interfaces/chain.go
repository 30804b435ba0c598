package interfaces

import (
	"context"
	"errors"

	"trustcompute/internal/model"
)

// ErrChainRecordNotFound returned when the chain holds no record for an id
var ErrChainRecordNotFound = errors.New("chain record not found")

// ChainRegistry on-chain worker and registry directory
type ChainRegistry interface {
	// WorkerRegister creates a worker record
	WorkerRegister(ctx context.Context, worker *model.Worker) error

	// WorkerUpdate replaces a worker's details blob
	WorkerUpdate(ctx context.Context, workerID string, details string) error

	// WorkerSetStatus changes a worker's status
	WorkerSetStatus(ctx context.Context, workerID string, status model.WorkerStatus) error

	// WorkerLookUp returns the ids of every worker on chain
	WorkerLookUp(ctx context.Context) ([]string, error)

	// WorkerRetrieve returns a worker record or ErrChainRecordNotFound
	WorkerRetrieve(ctx context.Context, workerID string) (*model.Worker, error)

	// RegistryAdd creates a registry record
	RegistryAdd(ctx context.Context, registry *model.Registry) error

	// RegistryUpdate replaces a registry record
	RegistryUpdate(ctx context.Context, registry *model.Registry) error

	// RegistryRetrieve returns a registry record or ErrChainRecordNotFound
	RegistryRetrieve(ctx context.Context, organizationID string) (*model.Registry, error)
}

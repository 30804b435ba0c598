package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"trustcompute/internal/model"
	"trustcompute/pkg/config"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

// ABCI query paths served by the registry application
const (
	QueryWorkerLookUp     = "/worker/lookup"
	QueryWorkerRetrieve   = "/worker/retrieve"
	QueryRegistryRetrieve = "/registry/retrieve"
)

// QueryCodeNotFound ABCI query code the registry application returns for a missing record
const QueryCodeNotFound uint32 = 2

// ABCIClient the subset of the CometBFT RPC client used by the registry
type ABCIClient interface {
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*ctypes.ResultABCIQuery, error)
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
}

// Tx transaction envelope delivered to the registry application
type Tx struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type workerUpdateTx struct {
	WorkerID string          `json:"workerId"`
	Details  json.RawMessage `json:"details"`
}

type workerStatusTx struct {
	WorkerID string             `json:"workerId"`
	Status   model.WorkerStatus `json:"status"`
}

// CometBFTRegistry chain registry backed by a CometBFT node running the registry application
type CometBFTRegistry struct {
	client ABCIClient
}

var _ interfaces.ChainRegistry = (*CometBFTRegistry)(nil)

// NewCometBFTRegistry wraps an RPC client
func NewCometBFTRegistry(client ABCIClient) *CometBFTRegistry {
	return &CometBFTRegistry{client: client}
}

// DialCometBFT connects to a node's HTTP RPC endpoint
func DialCometBFT(cfg config.ChainConfig) (*CometBFTRegistry, error) {
	client, err := cmthttp.NewWithClient(cfg.RPCAddress, &http.Client{Timeout: cfg.RPCTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT client: %w", err)
	}
	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("failed to start CometBFT client: %w", err)
	}
	logger.Infof("connected to CometBFT RPC at %s", cfg.RPCAddress)
	return NewCometBFTRegistry(client), nil
}

func (r *CometBFTRegistry) broadcast(ctx context.Context, method string, params interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}
	tx, err := json.Marshal(Tx{ID: uuid.NewString(), Method: method, Params: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s tx: %w", method, err)
	}

	result, err := r.client.BroadcastTxCommit(ctx, cmttypes.Tx(tx))
	if err != nil {
		return fmt.Errorf("%s broadcast failed: %w", method, err)
	}
	if result.CheckTx.Code != 0 {
		return fmt.Errorf("%s rejected by CheckTx, code %d: %s", method, result.CheckTx.Code, result.CheckTx.Log)
	}
	if result.TxResult.Code != 0 {
		return fmt.Errorf("%s failed in block %d, code %d: %s", method, result.Height, result.TxResult.Code, result.TxResult.Log)
	}
	logger.DebugCtx(ctx, "%s committed at height %d, hash %s", method, result.Height, result.Hash)
	return nil
}

func (r *CometBFTRegistry) query(ctx context.Context, path string, data []byte, out interface{}) error {
	result, err := r.client.ABCIQuery(ctx, path, cmtbytes.HexBytes(data))
	if err != nil {
		return fmt.Errorf("query %s failed: %w", path, err)
	}
	switch result.Response.Code {
	case 0:
	case QueryCodeNotFound:
		return interfaces.ErrChainRecordNotFound
	default:
		return fmt.Errorf("query %s returned code %d: %s", path, result.Response.Code, result.Response.Log)
	}
	if err := json.Unmarshal(result.Response.Value, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", path, err)
	}
	return nil
}

func (r *CometBFTRegistry) WorkerRegister(ctx context.Context, worker *model.Worker) error {
	return r.broadcast(ctx, MethodWorkerRegister, worker)
}

func (r *CometBFTRegistry) WorkerUpdate(ctx context.Context, workerID string, details string) error {
	if !json.Valid([]byte(details)) {
		return errors.New("worker details must be JSON")
	}
	return r.broadcast(ctx, MethodWorkerUpdate, workerUpdateTx{WorkerID: workerID, Details: json.RawMessage(details)})
}

func (r *CometBFTRegistry) WorkerSetStatus(ctx context.Context, workerID string, status model.WorkerStatus) error {
	return r.broadcast(ctx, MethodWorkerSetStatus, workerStatusTx{WorkerID: workerID, Status: status})
}

func (r *CometBFTRegistry) WorkerLookUp(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.query(ctx, QueryWorkerLookUp, nil, &ids); err != nil {
		if errors.Is(err, interfaces.ErrChainRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

func (r *CometBFTRegistry) WorkerRetrieve(ctx context.Context, workerID string) (*model.Worker, error) {
	var worker model.Worker
	if err := r.query(ctx, QueryWorkerRetrieve, []byte(workerID), &worker); err != nil {
		return nil, err
	}
	return &worker, nil
}

func (r *CometBFTRegistry) RegistryAdd(ctx context.Context, registry *model.Registry) error {
	return r.broadcast(ctx, MethodRegistryAdd, registry)
}

func (r *CometBFTRegistry) RegistryUpdate(ctx context.Context, registry *model.Registry) error {
	return r.broadcast(ctx, MethodRegistryUpdate, registry)
}

func (r *CometBFTRegistry) RegistryRetrieve(ctx context.Context, organizationID string) (*model.Registry, error) {
	var registry model.Registry
	if err := r.query(ctx, QueryRegistryRetrieve, []byte(organizationID), &registry); err != nil {
		return nil, err
	}
	return &registry, nil
}

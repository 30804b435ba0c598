package handler

import (
	"context"
	"encoding/json"

	"trustcompute/internal/model"
	"trustcompute/internal/service"
	"trustcompute/pkg/constants"
)

// statusResult acknowledgement returned by mutating registry and receipt methods
type statusResult struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

func success(message string) *statusResult {
	return &statusResult{Code: model.ErrCodeSuccess, Message: message}
}

// RegistryHandler serves the worker registry methods
type RegistryHandler struct {
	workers *service.WorkerService
}

// NewRegistryHandler creates registry handler
func NewRegistryHandler(workers *service.WorkerService) *RegistryHandler {
	return &RegistryHandler{workers: workers}
}

// Register binds the worker and registry methods
func (h *RegistryHandler) Register(rpc *JSONRPCHandler) {
	rpc.Register(constants.MethodWorkerRegister, h.WorkerRegister)
	rpc.Register(constants.MethodWorkerUpdate, h.WorkerUpdate)
	rpc.Register(constants.MethodWorkerSetStatus, h.WorkerSetStatus)
	rpc.Register(constants.MethodWorkerRetrieve, h.WorkerRetrieve)
	rpc.Register(constants.MethodWorkerLookUp, h.WorkerLookUp)
	rpc.Register(constants.MethodWorkerLookUpNext, h.WorkerLookUpNext)
	rpc.Register(constants.MethodRegistryRetrieve, h.RegistryRetrieve)
	rpc.Register(constants.MethodRegistryLookUp, h.RegistryLookUp)
	rpc.Register(constants.MethodRegistryLookUpNext, h.RegistryLookUpNext)
}

func (h *RegistryHandler) WorkerRegister(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerRegisterParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := h.workers.Register(ctx, &params); err != nil {
		return nil, err
	}
	return success("worker registered"), nil
}

func (h *RegistryHandler) WorkerUpdate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerUpdateParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := h.workers.Update(ctx, &params); err != nil {
		return nil, err
	}
	return success("worker updated"), nil
}

func (h *RegistryHandler) WorkerSetStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerSetStatusParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := h.workers.SetStatus(ctx, &params); err != nil {
		return nil, err
	}
	return success("worker status updated"), nil
}

func (h *RegistryHandler) WorkerRetrieve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerIDParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	worker, err := h.workers.Retrieve(ctx, params.WorkerID)
	if err != nil {
		return nil, err
	}
	return worker.View(), nil
}

// WorkerLookUp accepts missing params as an unfiltered lookup
func (h *RegistryHandler) WorkerLookUp(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerLookUpParams
	if err := decodeOptional(raw, &params); err != nil {
		return nil, err
	}
	return h.workers.LookUp(ctx, &params)
}

func (h *RegistryHandler) WorkerLookUpNext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkerLookUpParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	return h.workers.LookUpNext(ctx, &params)
}

func (h *RegistryHandler) RegistryRetrieve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.RegistryIDParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	return h.workers.RetrieveRegistry(ctx, params.OrganizationID)
}

func (h *RegistryHandler) RegistryLookUp(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.RegistryLookUpParams
	if err := decodeOptional(raw, &params); err != nil {
		return nil, err
	}
	return h.workers.LookUpRegistries(ctx, &params)
}

func (h *RegistryHandler) RegistryLookUpNext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.RegistryLookUpParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	return h.workers.LookUpRegistriesNext(ctx, &params)
}

// decodeOptional decodes params that may be absent or null
func decodeOptional(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return model.DecodeParams(raw, out)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"

	"trustcompute/internal/model"
	"trustcompute/internal/receipt"
	"trustcompute/pkg/constants"
)

// ReceiptHandler serves the work order receipt methods
type ReceiptHandler struct {
	receipts *receipt.Handler
}

// NewReceiptHandler creates receipt handler
func NewReceiptHandler(receipts *receipt.Handler) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Register binds the receipt methods
func (h *ReceiptHandler) Register(rpc *JSONRPCHandler) {
	rpc.Register(constants.MethodReceiptCreate, h.Create)
	rpc.Register(constants.MethodReceiptUpdate, h.Update)
	rpc.Register(constants.MethodReceiptRetrieve, h.Retrieve)
	rpc.Register(constants.MethodReceiptUpdateRetrieve, h.UpdateRetrieve)
	rpc.Register(constants.MethodReceiptLookUp, h.LookUp)
	rpc.Register(constants.MethodReceiptLookUpNext, h.LookUpNext)
}

// Create stores a requester-signed receipt creation record
func (h *ReceiptHandler) Create(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.Receipt
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := h.receipts.AcceptCreate(ctx, &params); err != nil {
		return nil, err
	}
	return success("receipt created"), nil
}

// Update appends an updater-signed receipt update
func (h *ReceiptHandler) Update(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.ReceiptUpdate
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := h.receipts.AcceptUpdate(ctx, &params); err != nil {
		return nil, err
	}
	return success("receipt updated"), nil
}

func (h *ReceiptHandler) Retrieve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.ReceiptIDParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	view, err := h.receipts.Retrieve(ctx, params.WorkOrderID)
	if errors.Is(err, receipt.ErrReceiptNotFound) {
		return nil, model.InvalidParameter("no receipt for work order %s", params.WorkOrderID)
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (h *ReceiptHandler) UpdateRetrieve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.ReceiptUpdateRetrieveParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	return h.receipts.RetrieveUpdate(ctx, params.WorkOrderID, params.UpdateIndex, params.UpdaterID)
}

func (h *ReceiptHandler) LookUp(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.ReceiptLookUpParams
	if err := decodeOptional(raw, &params); err != nil {
		return nil, err
	}
	return h.receipts.LookUp(ctx, &params)
}

func (h *ReceiptHandler) LookUpNext(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.ReceiptLookUpParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	return h.receipts.LookUpNext(ctx, &params)
}

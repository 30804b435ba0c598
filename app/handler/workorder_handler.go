package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"trustcompute/internal/model"
	"trustcompute/internal/receipt"
	"trustcompute/internal/service"
	"trustcompute/internal/workorder"
	"trustcompute/pkg/config"
	"trustcompute/pkg/constants"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WorkOrderHandler serves WorkOrderSubmit, WorkOrderGetResult and the result stream
type WorkOrderHandler struct {
	store      *workorder.Store
	workers    *service.WorkerService
	receipts   *receipt.Handler
	dispatcher interfaces.WorkOrderDispatcher
	notifier   interfaces.CompletionNotifier
	key        *crypto.SigningKey
	cfg        config.WorkOrderConfig
	upgrader   websocket.Upgrader
}

// NewWorkOrderHandler creates work order handler. dispatcher may be nil.
func NewWorkOrderHandler(
	store *workorder.Store,
	workers *service.WorkerService,
	receipts *receipt.Handler,
	dispatcher interfaces.WorkOrderDispatcher,
	notifier interfaces.CompletionNotifier,
	key *crypto.SigningKey,
	cfg config.WorkOrderConfig,
) *WorkOrderHandler {
	return &WorkOrderHandler{
		store:      store,
		workers:    workers,
		receipts:   receipts,
		dispatcher: dispatcher,
		notifier:   notifier,
		key:        key,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register binds the work order methods
func (h *WorkOrderHandler) Register(rpc *JSONRPCHandler) {
	rpc.Register(constants.MethodWorkOrderSubmit, h.Submit)
	rpc.Register(constants.MethodWorkOrderGetResult, h.GetResult)
}

// Submit validates and admits a work order. Acceptance is answered with PENDING
// unless sync mode waits for the result.
func (h *WorkOrderHandler) Submit(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.WorkOrderParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := validateSubmit(raw, &params); err != nil {
		return nil, err
	}
	registered, err := h.workers.Exists(ctx, params.WorkerID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, model.InvalidParameter("worker %s is not registered", params.WorkerID)
	}

	req := &model.WorkOrderRequest{JSONRPC: model.JSONRPCVersion, Method: constants.MethodWorkOrderSubmit, Params: params}
	var rawRequest string
	if envelope := requestFrom(ctx); envelope != nil {
		req.ID = envelope.ID
		data, err := json.Marshal(envelope)
		if err != nil {
			return nil, err
		}
		rawRequest = compactJSON(data)
	} else {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		rawRequest = string(data)
	}

	// subscribe before admission so a fast processor cannot complete unseen
	var done <-chan struct{}
	if h.cfg.SyncMode && h.notifier != nil {
		var cancel func()
		done, cancel = h.notifier.Subscribe(ctx, params.WorkOrderID)
		defer cancel()
	}

	outcome, err := h.store.Submit(ctx, params.WorkOrderID, rawRequest)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case workorder.SubmitAlreadyExists:
		return nil, model.InvalidParameter("work order %s already exists", params.WorkOrderID)
	case workorder.SubmitBusy:
		return nil, model.NewRPCError(model.ErrCodeBusy, "work order capacity reached, retry later")
	}
	logger.InfoCtx(ctx, "work order accepted, work_order_id: %s, worker_id: %s", params.WorkOrderID, params.WorkerID)

	if h.cfg.AutoReceipt && h.receipts != nil {
		if _, err := h.receipts.CreateWithNonce(ctx, req, model.ReceiptStatusPending, h.key, params.RequesterNonce); err != nil {
			logger.WarnCtx(ctx, "receipt creation for work order %s failed: %v", params.WorkOrderID, err)
		}
	}
	if h.dispatcher != nil {
		if err := h.dispatcher.Dispatch(ctx, params.WorkOrderID); err != nil {
			logger.WarnCtx(ctx, "dispatch of work order %s failed, processor will poll it: %v", params.WorkOrderID, err)
		}
	}

	if done != nil {
		timer := time.NewTimer(h.cfg.SyncTimeout)
		defer timer.Stop()
		select {
		case <-done:
			return h.result(ctx, params.WorkOrderID)
		case <-timer.C:
			logger.InfoCtx(ctx, "work order %s not finished within %v, falling back to polling", params.WorkOrderID, h.cfg.SyncTimeout)
		case <-ctx.Done():
		}
	}
	return nil, model.Pending("work order %s accepted, poll WorkOrderGetResult for the result", params.WorkOrderID)
}

// GetResult returns the result, the translated error, PENDING or INVALID_PARAMETER
func (h *WorkOrderHandler) GetResult(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params model.GetResultParams
	if err := model.DecodeParams(raw, &params); err != nil {
		return nil, err
	}
	if !model.IsHex(params.WorkOrderID) {
		return nil, model.InvalidParameter("workOrderId must be a hex string")
	}
	return h.result(ctx, params.WorkOrderID)
}

func (h *WorkOrderHandler) result(ctx context.Context, workOrderID string) (interface{}, error) {
	result, err := h.store.GetResult(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	switch result.Status {
	case workorder.ResultNotFound:
		return nil, model.InvalidParameter("work order %s not found", workOrderID)
	case workorder.ResultPending:
		return nil, model.Pending("work order %s is pending", workOrderID)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Result, nil
}

// ResultStream pushes the WorkOrderGetResult outcome once the work order completes
// @Summary Work order result stream
// @Description Upgrades to a WebSocket and sends one JSON-RPC response when the work order completes
// @Tags work-orders
// @Param id path string true "Work order ID"
// @Router /ws/work-orders/{id} [get]
func (h *WorkOrderHandler) ResultStream(c *gin.Context) {
	workOrderID := c.Param("id")
	if !model.IsHex(workOrderID) {
		c.JSON(http.StatusBadRequest, model.NewRPCErrorResponse(nil, model.InvalidParameter("workOrderId must be a hex string")))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// a closed client connection ends the wait
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	var done <-chan struct{}
	if h.notifier != nil {
		var unsubscribe func()
		done, unsubscribe = h.notifier.Subscribe(ctx, workOrderID)
		defer unsubscribe()
	}

	for {
		result, err := h.result(ctx, workOrderID)
		rpcErr := model.AsRPCError(err)
		if rpcErr == nil || rpcErr.Code != model.ErrCodePending {
			var resp *model.RPCResponse
			if rpcErr != nil {
				resp = model.NewRPCErrorResponse(nil, rpcErr)
			} else {
				resp = model.NewRPCResult(nil, result)
			}
			if err := conn.WriteJSON(resp); err != nil {
				logger.WarnCtx(ctx, "websocket write for work order %s failed: %v", workOrderID, err)
			}
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}

		select {
		case <-done:
		case <-time.After(streamPollInterval):
		case <-ctx.Done():
			return
		}
	}
}

const streamPollInterval = 2 * time.Second

// validateSubmit checks the fields a work order needs before any table write
func validateSubmit(raw json.RawMessage, params *model.WorkOrderParams) error {
	for name, value := range map[string]string{
		"workOrderId":    params.WorkOrderID,
		"workerId":       params.WorkerID,
		"workloadId":     params.WorkloadID,
		"requesterId":    params.RequesterID,
		"requesterNonce": params.RequesterNonce,
	} {
		if !model.IsHex(value) {
			return model.InvalidParameter("%s must be a hex string", name)
		}
	}

	var items struct {
		InData  []map[string]json.RawMessage `json:"inData"`
		OutData []map[string]json.RawMessage `json:"outData"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return model.InvalidParameter("invalid data items: %v", err)
	}
	if len(items.InData) == 0 {
		return model.InvalidParameter("inData must not be empty")
	}
	if err := validateItems("inData", items.InData); err != nil {
		return err
	}
	return validateItems("outData", items.OutData)
}

func validateItems(field string, items []map[string]json.RawMessage) error {
	for i, item := range items {
		if _, ok := item["index"]; !ok {
			return model.InvalidParameter("%s[%d] has no index", field, i)
		}
		data, ok := item["data"]
		if !ok {
			return model.InvalidParameter("%s[%d] has no data", field, i)
		}
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return model.InvalidParameter("%s[%d].data must be a string", field, i)
		}
	}
	return nil
}

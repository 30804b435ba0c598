package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trustcompute/internal/enclave"
	"trustcompute/internal/model"
	"trustcompute/internal/receipt"
	"trustcompute/internal/workorder"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"
	"trustcompute/pkg/notification"
)

// Processor claims scheduled work orders, runs them on the enclave and records the outcome
type Processor struct {
	store    *workorder.Store
	receipts *receipt.Handler
	executor *enclave.Executor
	key      *crypto.SigningKey
	notifier interfaces.CompletionNotifier
	webhook  *notification.WebhookNotifier
	workerID string
	now      func() time.Time
}

// New creates a processor. notifier and webhook may be nil.
func New(
	store *workorder.Store,
	receipts *receipt.Handler,
	executor *enclave.Executor,
	key *crypto.SigningKey,
	notifier interfaces.CompletionNotifier,
	webhook *notification.WebhookNotifier,
	workerID string,
) *Processor {
	return &Processor{
		store:    store,
		receipts: receipts,
		executor: executor,
		key:      key,
		notifier: notifier,
		webhook:  webhook,
		workerID: workerID,
		now:      time.Now,
	}
}

// Recover finishes work orders a crashed processor left in wo-processing
func (p *Processor) Recover(ctx context.Context) ([]workorder.RecoveredOrder, error) {
	recovered, err := p.store.ProcessingRecover(ctx)
	if err != nil {
		return nil, fmt.Errorf("processing recovery failed: %w", err)
	}

	for _, order := range recovered {
		if order.Rescheduled {
			logger.InfoCtx(ctx, "work order %s rescheduled after restart", order.WorkOrderID)
			continue
		}
		if order.Processed == "" {
			continue
		}
		var resp model.WorkOrderResponse
		if err := json.Unmarshal([]byte(order.Response), &resp); err != nil {
			resp.Error = model.NewRPCError(model.EnclaveErrUnknown, "stored response is not valid JSON")
		}
		p.updateReceipt(ctx, order.WorkOrderID, order.Response, &resp)
		p.publish(ctx, order.WorkOrderID)
		logger.InfoCtx(ctx, "work order %s marked %s after restart", order.WorkOrderID, order.Processed)
	}
	return recovered, nil
}

// ProcessPending processes every scheduled work order and returns how many it completed
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	ids, err := p.store.ScheduledIDs(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		done, err := p.ProcessOne(ctx, id)
		if err != nil {
			return processed, err
		}
		if done {
			processed++
		}
	}
	return processed, nil
}

// ProcessOne claims and processes one work order; false means it was not scheduled
func (p *Processor) ProcessOne(ctx context.Context, workOrderID string) (bool, error) {
	raw, claimed, err := p.store.Claim(ctx, workOrderID)
	if err != nil {
		return false, fmt.Errorf("failed to claim work order %s: %w", workOrderID, err)
	}
	if !claimed {
		return false, nil
	}

	started := p.now()
	resp := p.executor.ExecuteRaw(ctx, raw)

	data, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("failed to marshal response of %s: %w", workOrderID, err)
	}
	status := model.ProcessedSuccess
	if resp.Error != nil {
		status = model.ProcessedFailed
	}
	if err := p.store.Complete(ctx, workOrderID, string(data), status); err != nil {
		return false, fmt.Errorf("failed to complete work order %s: %w", workOrderID, err)
	}

	logger.InfoCtx(ctx, "work order %s processed, status: %s, duration: %v", workOrderID, status, p.now().Sub(started))

	p.updateReceipt(ctx, workOrderID, string(data), resp)
	p.publish(ctx, workOrderID)
	p.notify(ctx, workOrderID, raw, status)
	return true, nil
}

// updateReceipt appends PROCESSED, or FAILED when the response carries an error
func (p *Processor) updateReceipt(ctx context.Context, workOrderID, response string, resp *model.WorkOrderResponse) {
	if p.receipts == nil {
		return
	}

	updateType := model.ReceiptStatusProcessed
	var updateData interface{} = json.RawMessage(response)
	if resp.Error != nil || !json.Valid([]byte(response)) {
		updateType = model.ReceiptStatusFailed
		if resp.Error != nil {
			updateData = resp.Error.Message
		} else {
			updateData = "invalid response"
		}
	}

	outcome, _, err := p.receipts.Update(ctx, workOrderID, updateType, updateData, p.key)
	if err != nil {
		logger.ErrorCtx(ctx, "receipt update for work order %s failed: %v", workOrderID, err)
		return
	}
	if outcome == receipt.UpdateApplied {
		logger.DebugCtx(ctx, "receipt of work order %s updated to %s", workOrderID, updateType)
	}
}

func (p *Processor) publish(ctx context.Context, workOrderID string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, workOrderID); err != nil {
		logger.WarnCtx(ctx, "publish completion of %s failed: %v", workOrderID, err)
	}
}

func (p *Processor) notify(ctx context.Context, workOrderID, raw, status string) {
	if p.webhook == nil {
		return
	}
	req, err := model.ParseWorkOrderRequest([]byte(raw))
	if err != nil || !notification.Deliverable(req.Params.NotifyURI) {
		return
	}
	notice := &notification.WorkOrderNotification{
		WorkOrderID: workOrderID,
		WorkerID:    p.workerID,
		Status:      status,
		CompletedAt: p.now().Unix(),
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := p.webhook.Send(sendCtx, req.Params.NotifyURI, notice); err != nil {
			logger.WarnCtx(sendCtx, "notify %s for work order %s failed: %v", req.Params.NotifyURI, workOrderID, err)
		}
	}()
}

package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"trustcompute/internal/model"
	"trustcompute/pkg/crypto"
)

// AcceptCreate validates and stores a requester-signed receipt create record
func (h *Handler) AcceptCreate(ctx context.Context, receipt *model.Receipt) error {
	if err := validateCreate(receipt); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	raw, found, err := h.store.Request(ctx, receipt.WorkOrderID)
	if err != nil {
		return err
	}
	if !found {
		return model.InvalidParameter("work order %s does not exist", receipt.WorkOrderID)
	}
	existing, err := h.store.Receipt(ctx, receipt.WorkOrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		return model.InvalidParameter("receipt for work order %s already exists", receipt.WorkOrderID)
	}

	req, err := model.ParseWorkOrderRequest([]byte(raw))
	if err != nil {
		return model.NewRPCError(model.ErrCodeUnknown, "stored request for %s is corrupt", receipt.WorkOrderID)
	}
	expected := hex.EncodeToString(crypto.RequestHash(&req.Params))
	if !strings.EqualFold(expected, receipt.WorkOrderRequestHash) {
		return model.InvalidParameter("workOrderRequestHash does not match the submitted work order")
	}

	if err := crypto.Verify(receipt.ReceiptVerificationKey, createMessage(receipt), receipt.RequesterSignature); err != nil {
		return signatureError(err)
	}
	return h.store.SaveReceipt(ctx, receipt)
}

// AcceptUpdate validates and appends an updater-signed receipt update
func (h *Handler) AcceptUpdate(ctx context.Context, update *model.ReceiptUpdate) error {
	if err := validateUpdate(update); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	receipt, err := h.store.Receipt(ctx, update.WorkOrderID)
	if err != nil {
		return err
	}
	if receipt == nil {
		return model.InvalidParameter("no receipt for work order %s", update.WorkOrderID)
	}
	updates, err := h.store.ReceiptUpdates(ctx, update.WorkOrderID)
	if err != nil {
		return err
	}
	if len(updates) > 0 {
		switch last := updates[len(updates)-1].UpdateType; {
		case last == model.ReceiptStatusCompleted:
			return model.InvalidParameter("receipt for work order %s is already completed", update.WorkOrderID)
		case last == model.ReceiptStatusProcessed && regressesProcessed(update.UpdateType):
			return model.InvalidParameter("receipt for work order %s is already processed, %s not allowed",
				update.WorkOrderID, update.UpdateType)
		}
	}

	if hashedUpdate(update.UpdateType) {
		response, found, err := h.store.Response(ctx, update.WorkOrderID)
		if err != nil {
			return err
		}
		if !found {
			return model.InvalidParameter("work order %s has no response yet", update.WorkOrderID)
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, []byte(response)); err != nil {
			compact.Reset()
			compact.WriteString(response)
		}
		if !strings.EqualFold(crypto.HexDigest(compact.Bytes()), update.UpdateData) {
			return model.InvalidParameter("updateData does not match the work order response hash")
		}
	}

	if err := crypto.Verify(update.ReceiptVerificationKey, updateMessage(update), update.UpdateSignature); err != nil {
		return signatureError(err)
	}

	updates = append(updates, *update)
	return h.store.SaveReceiptUpdates(ctx, update.WorkOrderID, updates)
}

func regressesProcessed(t model.ReceiptStatus) bool {
	return t == model.ReceiptStatusPending || t == model.ReceiptStatusFailed || t == model.ReceiptStatusRejected
}

func signatureError(err error) error {
	if errors.Is(err, crypto.ErrInvalidSignature) {
		return model.NewRPCError(model.ErrCodeInvalidSignature, "receipt signature verification failed")
	}
	return model.InvalidParameter("malformed signature or verification key: %v", err)
}

func validateCreate(r *model.Receipt) error {
	if r == nil {
		return model.InvalidParameter("missing receipt")
	}
	for name, value := range map[string]string{
		"workOrderId":             r.WorkOrderID,
		"workerServiceId":         r.WorkerServiceID,
		"workerId":                r.WorkerID,
		"requesterId":             r.RequesterID,
		"workOrderRequestHash":    r.WorkOrderRequestHash,
		"requesterGeneratedNonce": r.RequesterGeneratedNonce,
		"receiptVerificationKey":  r.ReceiptVerificationKey,
	} {
		if !model.IsHex(value) {
			return model.InvalidParameter("%s must be a hex string", name)
		}
	}
	if !r.ReceiptCreateStatus.Valid() {
		return model.InvalidParameter("invalid receiptCreateStatus %d", int(r.ReceiptCreateStatus))
	}
	if r.SignatureRules != model.SignatureRules {
		return model.InvalidParameter("unsupported signatureRules %q", r.SignatureRules)
	}
	if !isBase64(r.RequesterSignature) {
		return model.InvalidParameter("requesterSignature must be base64")
	}
	return nil
}

func validateUpdate(u *model.ReceiptUpdate) error {
	if u == nil {
		return model.InvalidParameter("missing receipt update")
	}
	if !model.IsHex(u.WorkOrderID) {
		return model.InvalidParameter("workOrderId must be a hex string")
	}
	if !model.IsHex(u.UpdaterID) {
		return model.InvalidParameter("updaterId must be a hex string")
	}
	if !model.IsHex(u.ReceiptVerificationKey) {
		return model.InvalidParameter("receiptVerificationKey must be a hex string")
	}
	if !u.UpdateType.Valid() {
		return model.InvalidParameter("invalid updateType %d", int(u.UpdateType))
	}
	if u.SignatureRules != model.SignatureRules {
		return model.InvalidParameter("unsupported signatureRules %q", u.SignatureRules)
	}
	if !isBase64(u.UpdateSignature) {
		return model.InvalidParameter("updateSignature must be base64")
	}
	return nil
}

func isBase64(s string) bool {
	if s == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

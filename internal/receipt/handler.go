package receipt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"trustcompute/internal/model"
	"trustcompute/internal/pagination"
	"trustcompute/internal/workorder"
	"trustcompute/pkg/constants"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrReceiptExists a receipt was already created for the work order
	ErrReceiptExists = errors.New("receipt already exists")

	// ErrReceiptNotFound no receipt exists for the work order
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrSignature signing failed
	ErrSignature = errors.New("receipt signature error")
)

// UpdateOutcome result of Update
type UpdateOutcome int

const (
	UpdateApplied UpdateOutcome = iota
	UpdateSkipped
)

// Handler creates, updates, retrieves and looks up work-order receipts
type Handler struct {
	store *workorder.Store
	pager *pagination.Paginator
	nonce func() string

	// serialises read-modify-write of update lists
	mu sync.Mutex
}

// NewHandler creates a receipt handler paging receipt lookups by pageSize
func NewHandler(store *workorder.Store, pageSize int) *Handler {
	return &Handler{
		store: store,
		pager: pagination.New(store.KV(), constants.TableReceipts, pageSize),
		nonce: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

func createMessage(r *model.Receipt) []byte {
	return []byte(r.WorkOrderID +
		r.WorkerServiceID +
		r.WorkerID +
		r.RequesterID +
		strconv.Itoa(int(r.ReceiptCreateStatus)) +
		r.WorkOrderRequestHash +
		r.RequesterGeneratedNonce)
}

func updateMessage(u *model.ReceiptUpdate) []byte {
	return []byte(u.WorkOrderID + strconv.Itoa(int(u.UpdateType)) + u.UpdateData)
}

// Create builds, signs and stores the receipt for a submitted work order
func (h *Handler) Create(ctx context.Context, req *model.WorkOrderRequest, status model.ReceiptStatus, key *crypto.SigningKey) (*model.Receipt, error) {
	return h.CreateWithNonce(ctx, req, status, key, "")
}

// CreateWithNonce is Create with a requester supplied nonce. An empty nonce is generated.
func (h *Handler) CreateWithNonce(ctx context.Context, req *model.WorkOrderRequest, status model.ReceiptStatus, key *crypto.SigningKey, nonce string) (*model.Receipt, error) {
	if nonce == "" {
		nonce = h.nonce()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	params := &req.Params
	existing, err := h.store.Receipt(ctx, params.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReceiptExists
	}

	receipt := &model.Receipt{
		WorkOrderID:             params.WorkOrderID,
		WorkerServiceID:         params.WorkerID,
		WorkerID:                params.WorkerID,
		RequesterID:             params.RequesterID,
		ReceiptCreateStatus:     status,
		WorkOrderRequestHash:    hex.EncodeToString(crypto.RequestHash(params)),
		RequesterGeneratedNonce: nonce,
		SignatureRules:          model.SignatureRules,
	}
	if key != nil {
		receipt.ReceiptVerificationKey = key.VerificationKey()
	}
	signature, err := key.Sign(createMessage(receipt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	receipt.RequesterSignature = signature

	if err := h.store.SaveReceipt(ctx, receipt); err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "receipt created for work order %s, status %s", receipt.WorkOrderID, status)
	return receipt, nil
}

// Update appends a signed update. It is skipped when no receipt exists or the
// receipt already completed. PROCESSED and COMPLETED updates store the hex hash
// of the JSON-encoded updateData instead of the data itself.
func (h *Handler) Update(ctx context.Context, workOrderID string, updateType model.ReceiptStatus, updateData interface{}, key *crypto.SigningKey) (UpdateOutcome, *model.ReceiptUpdate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	receipt, err := h.store.Receipt(ctx, workOrderID)
	if err != nil {
		return UpdateSkipped, nil, err
	}
	if receipt == nil {
		return UpdateSkipped, nil, nil
	}
	updates, err := h.store.ReceiptUpdates(ctx, workOrderID)
	if err != nil {
		return UpdateSkipped, nil, err
	}
	if len(updates) > 0 && updates[len(updates)-1].UpdateType == model.ReceiptStatusCompleted {
		return UpdateSkipped, nil, nil
	}

	data, err := encodeUpdateData(updateType, updateData)
	if err != nil {
		return UpdateSkipped, nil, err
	}

	update := model.ReceiptUpdate{
		WorkOrderID:    workOrderID,
		UpdateType:     updateType,
		UpdateData:     data,
		SignatureRules: model.SignatureRules,
	}
	if key != nil {
		update.UpdaterID = key.VerificationKey()
		update.ReceiptVerificationKey = key.VerificationKey()
	}
	signature, err := key.Sign(updateMessage(&update))
	if err != nil {
		return UpdateSkipped, nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	update.UpdateSignature = signature

	updates = append(updates, update)
	if err := h.store.SaveReceiptUpdates(ctx, workOrderID, updates); err != nil {
		return UpdateSkipped, nil, err
	}
	return UpdateApplied, &update, nil
}

func encodeUpdateData(updateType model.ReceiptStatus, updateData interface{}) (string, error) {
	if hashedUpdate(updateType) {
		data, err := json.Marshal(updateData)
		if err != nil {
			return "", fmt.Errorf("failed to encode update data: %w", err)
		}
		return crypto.HexDigest(data), nil
	}
	if s, ok := updateData.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(updateData)
	if err != nil {
		return "", fmt.Errorf("failed to encode update data: %w", err)
	}
	return string(data), nil
}

func hashedUpdate(t model.ReceiptStatus) bool {
	return t == model.ReceiptStatusProcessed || t == model.ReceiptStatusCompleted
}

// Retrieve returns the receipt with its current status
func (h *Handler) Retrieve(ctx context.Context, workOrderID string) (*model.ReceiptView, error) {
	receipt, err := h.store.Receipt(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrReceiptNotFound
	}
	updates, err := h.store.ReceiptUpdates(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	view := &model.ReceiptView{Receipt: *receipt, ReceiptCurrentStatus: receipt.ReceiptCreateStatus}
	if len(updates) > 0 {
		view.ReceiptCurrentStatus = updates[len(updates)-1].UpdateType
	}
	return view, nil
}

// RetrieveUpdate returns the 1-based updateIndex-th update; model.LastReceiptIndex selects the latest.
// A non-empty updaterID must match the selected update.
func (h *Handler) RetrieveUpdate(ctx context.Context, workOrderID string, updateIndex int64, updaterID string) (*model.ReceiptUpdateView, error) {
	if updateIndex <= 0 {
		return nil, model.InvalidParameter("update index must be positive")
	}
	receipt, err := h.store.Receipt(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, model.InvalidParameter("no receipt for work order %s", workOrderID)
	}
	updates, err := h.store.ReceiptUpdates(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	count := int64(len(updates))
	var position int64
	switch {
	case updateIndex == model.LastReceiptIndex:
		if count == 0 {
			return nil, model.InvalidParameter("work order %s has no receipt updates", workOrderID)
		}
		position = count - 1
	case updateIndex > count:
		return nil, model.InvalidParameter("update index %d out of range, %d updates", updateIndex, count)
	default:
		position = updateIndex - 1
	}

	selected := updates[position]
	if updaterID != "" && selected.UpdaterID != updaterID {
		return nil, model.InvalidParameter("update %d was not made by updater %s", position+1, updaterID)
	}
	return &model.ReceiptUpdateView{ReceiptUpdate: selected, UpdateCount: len(updates)}, nil
}

func receiptFilter(params *model.ReceiptLookUpParams) pagination.Filter {
	filter := pagination.Filter{}
	if params == nil {
		return filter
	}
	if params.WorkerServiceID != nil {
		filter["workerServiceId"] = *params.WorkerServiceID
	}
	if params.WorkerID != nil {
		filter["workerId"] = *params.WorkerID
	}
	if params.RequesterID != nil {
		filter["requesterId"] = *params.RequesterID
	}
	if params.ReceiptCreateStatus != nil {
		filter["receiptCreateStatus"] = *params.ReceiptCreateStatus
	}
	return filter
}

// LookUp returns the first page of receipt ids matching params
func (h *Handler) LookUp(ctx context.Context, params *model.ReceiptLookUpParams) (*model.LookupResult, error) {
	return h.pager.LookUp(ctx, receiptFilter(params))
}

// LookUpNext continues a receipt lookup from params.LastLookUpTag
func (h *Handler) LookUpNext(ctx context.Context, params *model.ReceiptLookUpParams) (*model.LookupResult, error) {
	tag := ""
	if params != nil {
		tag = string(params.LastLookUpTag)
	}
	return h.pager.LookUpNext(ctx, receiptFilter(params), tag)
}

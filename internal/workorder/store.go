package workorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"trustcompute/internal/model"
	"trustcompute/pkg/constants"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"
)

// value stored in wo-processing while a processor holds the claim
const processingMarker = "PROCESSING"

// Store work-order state machine over a KeyValueStore.
// Submission writes wo-timestamps, wo-requests, wo-scheduled in that order; BootRecover
// relies on it to tell abandoned submissions from live ones.
type Store struct {
	kv       interfaces.KeyValueStore
	maxCount int
	now      func() time.Time

	mu    sync.Mutex
	sched SchedulerState
}

// NewStore creates a work-order store admitting at most maxCount tracked work orders
func NewStore(kv interfaces.KeyValueStore, maxCount int) *Store {
	if maxCount < 1 {
		maxCount = 1
	}
	return &Store{
		kv:       kv,
		maxCount: maxCount,
		now:      time.Now,
		sched:    SchedulerState{Queue: make([]string, 0)},
	}
}

// KV returns the underlying key-value store
func (s *Store) KV() interfaces.KeyValueStore {
	return s.kv
}

// Scheduler returns a copy of the in-memory admission state
func (s *Store) Scheduler() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.clone()
}

// BootRecover rebuilds the admission FIFO from persisted state. Ids with a timestamp
// but none of wo-scheduled, wo-processing, wo-processed are leftovers of an interrupted
// submission or eviction and are purged.
func (s *Store) BootRecover(ctx context.Context) (SchedulerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.kv.Lookup(ctx, constants.TableTimestamps)
	if err != nil {
		return SchedulerState{}, fmt.Errorf("failed to list work orders: %w", err)
	}

	recovered := SchedulerState{Queue: make([]string, 0, len(ids))}
	purged := 0
	for _, id := range ids {
		live, err := s.hasAny(ctx, id, constants.TableScheduled, constants.TableProcessing, constants.TableProcessed)
		if err != nil {
			return SchedulerState{}, err
		}
		if !live {
			if err := s.purge(ctx, id); err != nil {
				return SchedulerState{}, err
			}
			purged++
			continue
		}
		recovered.Queue = append(recovered.Queue, id)
		recovered.Count++
	}

	s.sched = recovered
	logger.InfoCtx(ctx, "work order boot recovery: %d re-admitted, %d orphans purged", recovered.Count, purged)
	return recovered.clone(), nil
}

// Submit admits a new work order. Over capacity, the first processed work order in
// wo-timestamps order is evicted; when none is evictable the submission is Busy.
func (s *Store) Submit(ctx context.Context, workOrderID, rawRequest string) (SubmitOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists, err := s.kv.Get(ctx, constants.TableTimestamps, workOrderID)
	if err != nil {
		return SubmitBusy, err
	}
	if exists {
		return SubmitAlreadyExists, nil
	}

	// the table is shared when several stores use one KV, so it is the count of record
	tracked, err := s.kv.Lookup(ctx, constants.TableTimestamps)
	if err != nil {
		return SubmitBusy, err
	}
	s.sched.Count = len(tracked)

	if s.sched.Count >= s.maxCount {
		evicted, err := s.evictOne(ctx)
		if err != nil {
			return SubmitBusy, err
		}
		if !evicted {
			logger.WarnCtx(ctx, "work order %s rejected: %d work orders tracked and none processed", workOrderID, s.sched.Count)
			return SubmitBusy, nil
		}
	}

	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.kv.Set(ctx, constants.TableTimestamps, workOrderID, timestamp); err != nil {
		return SubmitBusy, err
	}
	if err := s.kv.Set(ctx, constants.TableRequests, workOrderID, rawRequest); err != nil {
		return SubmitBusy, err
	}
	if err := s.kv.Set(ctx, constants.TableScheduled, workOrderID, rawRequest); err != nil {
		return SubmitBusy, err
	}

	s.sched.Queue = append(s.sched.Queue, workOrderID)
	s.sched.Count++
	logger.DebugCtx(ctx, "work order %s scheduled (%d/%d)", workOrderID, s.sched.Count, s.maxCount)
	return SubmitAccepted, nil
}

// evictOne purges the first processed work order in wo-timestamps order. Caller holds mu.
func (s *Store) evictOne(ctx context.Context) (bool, error) {
	ids, err := s.kv.Lookup(ctx, constants.TableTimestamps)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		_, processed, err := s.kv.Get(ctx, constants.TableProcessed, id)
		if err != nil {
			return false, err
		}
		if !processed {
			continue
		}
		if err := s.purge(ctx, id); err != nil {
			return false, err
		}
		s.sched.remove(id)
		logger.InfoCtx(ctx, "evicted processed work order %s to admit a new one", id)
		return true, nil
	}
	return false, nil
}

// purge removes an id from every work-order table. wo-processed goes first and
// wo-timestamps last, so an interrupted purge is finished by BootRecover.
func (s *Store) purge(ctx context.Context, id string) error {
	for _, table := range constants.WorkOrderTables {
		if err := s.kv.Remove(ctx, table, id); err != nil {
			return fmt.Errorf("failed to purge work order %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) hasAny(ctx context.Context, id string, tables ...string) (bool, error) {
	for _, table := range tables {
		_, found, err := s.kv.Get(ctx, table, id)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

type storedResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *model.RPCError `json:"error"`
}

// GetResult returns the stored result, the translated stored error, Pending or NotFound
func (s *Store) GetResult(ctx context.Context, workOrderID string) (*Result, error) {
	raw, found, err := s.kv.Get(ctx, constants.TableResponses, workOrderID)
	if err != nil {
		return nil, err
	}
	if found {
		return decodeResponse(raw), nil
	}

	_, submitted, err := s.kv.Get(ctx, constants.TableTimestamps, workOrderID)
	if err != nil {
		return nil, err
	}
	if submitted {
		return &Result{Status: ResultPending}, nil
	}
	return &Result{Status: ResultNotFound}, nil
}

func decodeResponse(raw string) *Result {
	var resp storedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return &Result{Status: ResultReady, Error: model.NewRPCError(model.ErrCodeUnknown, "stored response is not valid JSON")}
	}
	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		return &Result{Status: ResultReady, Result: resp.Result}
	}
	if resp.Error != nil {
		return &Result{Status: ResultReady, Error: &model.RPCError{
			Code:    model.TranslateEnclaveCode(resp.Error.Code),
			Message: resp.Error.Message,
		}}
	}
	return &Result{Status: ResultReady, Error: model.NewRPCError(model.ErrCodeUnknown, "stored response has neither result nor error")}
}

// CurrentState derives the lifecycle state of a work order
func (s *Store) CurrentState(ctx context.Context, workOrderID string) (State, error) {
	checks := []struct {
		state  State
		tables []string
	}{
		{StateCompleted, []string{constants.TableProcessed, constants.TableResponses}},
		{StateProcessing, []string{constants.TableProcessing}},
		{StateSubmitted, []string{constants.TableScheduled, constants.TableTimestamps}},
	}
	for _, check := range checks {
		found, err := s.hasAny(ctx, workOrderID, check.tables...)
		if err != nil {
			return StatePurged, err
		}
		if found {
			return check.state, nil
		}
	}
	return StatePurged, nil
}

// Request returns the raw submitted request
func (s *Store) Request(ctx context.Context, workOrderID string) (string, bool, error) {
	return s.kv.Get(ctx, constants.TableRequests, workOrderID)
}

// Response returns the raw stored response
func (s *Store) Response(ctx context.Context, workOrderID string) (string, bool, error) {
	return s.kv.Get(ctx, constants.TableResponses, workOrderID)
}

// ScheduledIDs lists work orders waiting for the processor
func (s *Store) ScheduledIDs(ctx context.Context) ([]string, error) {
	return s.kv.Lookup(ctx, constants.TableScheduled)
}

// Claim moves a work order from wo-scheduled to wo-processing and returns its request.
// ok is false when another processor already claimed it.
func (s *Store) Claim(ctx context.Context, workOrderID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, found, err := s.kv.Get(ctx, constants.TableScheduled, workOrderID)
	if err != nil || !found {
		return "", false, err
	}
	if err := s.kv.Set(ctx, constants.TableProcessing, workOrderID, processingMarker); err != nil {
		return "", false, err
	}
	if err := s.kv.Remove(ctx, constants.TableScheduled, workOrderID); err != nil {
		return "", false, err
	}
	return raw, true, nil
}

// Complete stores the response, marks the work order processed and releases the claim
func (s *Store) Complete(ctx context.Context, workOrderID, response, processed string) error {
	if err := s.kv.Set(ctx, constants.TableResponses, workOrderID, response); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, constants.TableProcessed, workOrderID, processed); err != nil {
		return err
	}
	return s.kv.Remove(ctx, constants.TableProcessing, workOrderID)
}

// ProcessingRecover finishes work orders left in wo-processing by a crashed processor.
// Those with a stored response are marked processed; the rest go back to wo-scheduled.
func (s *Store) ProcessingRecover(ctx context.Context) ([]RecoveredOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.kv.Lookup(ctx, constants.TableProcessing)
	if err != nil {
		return nil, err
	}

	recovered := make([]RecoveredOrder, 0, len(ids))
	for _, id := range ids {
		entry := RecoveredOrder{WorkOrderID: id}

		response, found, err := s.kv.Get(ctx, constants.TableResponses, id)
		if err != nil {
			return nil, err
		}
		if found {
			entry.Response = response
			entry.Processed = processedStatus(response)
			if err := s.kv.Set(ctx, constants.TableProcessed, id, entry.Processed); err != nil {
				return nil, err
			}
		} else {
			request, ok, err := s.kv.Get(ctx, constants.TableRequests, id)
			if err != nil {
				return nil, err
			}
			if ok {
				if err := s.kv.Set(ctx, constants.TableScheduled, id, request); err != nil {
					return nil, err
				}
				entry.Rescheduled = true
			} else {
				logger.WarnCtx(ctx, "work order %s in processing has no stored request, dropping it", id)
			}
		}

		if err := s.kv.Remove(ctx, constants.TableProcessing, id); err != nil {
			return nil, err
		}
		recovered = append(recovered, entry)
	}
	return recovered, nil
}

func processedStatus(response string) string {
	var resp storedResponse
	if err := json.Unmarshal([]byte(response), &resp); err != nil || resp.Error != nil {
		return model.ProcessedFailed
	}
	return model.ProcessedSuccess
}

// SaveReceipt stores a receipt creation record
func (s *Store) SaveReceipt(ctx context.Context, receipt *model.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return s.kv.Set(ctx, constants.TableReceipts, receipt.WorkOrderID, string(data))
}

// Receipt returns the receipt creation record, or nil when none exists
func (s *Store) Receipt(ctx context.Context, workOrderID string) (*model.Receipt, error) {
	raw, found, err := s.kv.Get(ctx, constants.TableReceipts, workOrderID)
	if err != nil || !found {
		return nil, err
	}
	var receipt model.Receipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt %s: %w", workOrderID, err)
	}
	return &receipt, nil
}

// ReceiptUpdates returns the ordered receipt update list
func (s *Store) ReceiptUpdates(ctx context.Context, workOrderID string) ([]model.ReceiptUpdate, error) {
	raw, found, err := s.kv.Get(ctx, constants.TableReceiptUpdates, workOrderID)
	if err != nil || !found {
		return nil, err
	}
	var updates []model.ReceiptUpdate
	if err := json.Unmarshal([]byte(raw), &updates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt updates %s: %w", workOrderID, err)
	}
	return updates, nil
}

// SaveReceiptUpdates replaces the stored receipt update list
func (s *Store) SaveReceiptUpdates(ctx context.Context, workOrderID string, updates []model.ReceiptUpdate) error {
	data, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt updates: %w", err)
	}
	return s.kv.Set(ctx, constants.TableReceiptUpdates, workOrderID, string(data))
}

package processor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trustcompute/internal/enclave"
	"trustcompute/internal/model"
	"trustcompute/internal/receipt"
	"trustcompute/internal/workorder"
	"trustcompute/pkg/constants"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/notification"
	"trustcompute/pkg/notify"
	badgerstore "trustcompute/pkg/store/badger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *workorder.Store
	kv        *badgerstore.Store
	receipts  *receipt.Handler
	notifier  *notify.LocalNotifier
	key       *crypto.SigningKey
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)

	store := workorder.NewStore(kv, 10)
	receipts := receipt.NewHandler(store, 10)
	notifier := notify.NewLocalNotifier()
	executor := enclave.NewExecutor(key, "bb01", &enclave.SimulatedAttestation{})

	return &fixture{
		store:     store,
		kv:        kv,
		receipts:  receipts,
		notifier:  notifier,
		key:       key,
		processor: New(store, receipts, executor, key, notifier, notification.NewWebhookNotifier(), "bb01"),
	}
}

func (f *fixture) submit(t *testing.T, id, workload, notifyURI string) *model.WorkOrderRequest {
	t.Helper()
	req := &model.WorkOrderRequest{
		JSONRPC: model.JSONRPCVersion,
		Method:  constants.MethodWorkOrderSubmit,
		ID:      json.RawMessage("1"),
		Params: model.WorkOrderParams{
			WorkOrderID:    id,
			WorkerID:       "bb01",
			WorkloadID:     enclave.WorkloadID(workload),
			RequesterID:    "cc01",
			RequesterNonce: "dd01",
			NotifyURI:      notifyURI,
			InData:         []model.DataItem{{Index: 0, Data: base64.StdEncoding.EncodeToString([]byte("hi"))}},
		},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	outcome, err := f.store.Submit(context.Background(), id, string(raw))
	require.NoError(t, err)
	require.Equal(t, workorder.SubmitAccepted, outcome)
	return req
}

func TestProcessOne_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "aa01", enclave.WorkloadEchoResult, "")
	_, err := f.receipts.Create(ctx, req, model.ReceiptStatusPending, f.key)
	require.NoError(t, err)

	done, cancel := f.notifier.Subscribe(ctx, "aa01")
	defer cancel()

	ok, err := f.processor.ProcessOne(ctx, "aa01")
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion not published")
	}

	state, err := f.store.CurrentState(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, workorder.StateCompleted, state)

	processed, _, err := f.kv.Get(ctx, constants.TableProcessed, "aa01")
	require.NoError(t, err)
	assert.Equal(t, model.ProcessedSuccess, processed)

	result, err := f.store.GetResult(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, workorder.ResultReady, result.Status)
	assert.Nil(t, result.Error)

	response, _, err := f.store.Response(ctx, "aa01")
	require.NoError(t, err)
	view, err := f.receipts.Retrieve(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusProcessed, view.ReceiptCurrentStatus)
	update, err := f.receipts.RetrieveUpdate(ctx, "aa01", model.LastReceiptIndex, "")
	require.NoError(t, err)
	assert.Equal(t, crypto.HexDigest([]byte(response)), update.UpdateData)

	// a second claim finds nothing
	ok, err = f.processor.ProcessOne(ctx, "aa01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessOne_FailureTranslated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "aa01", "unknown-workload", "")
	_, err := f.receipts.Create(ctx, req, model.ReceiptStatusPending, f.key)
	require.NoError(t, err)

	ok, err := f.processor.ProcessOne(ctx, "aa01")
	require.NoError(t, err)
	assert.True(t, ok)

	processed, _, err := f.kv.Get(ctx, constants.TableProcessed, "aa01")
	require.NoError(t, err)
	assert.Equal(t, model.ProcessedFailed, processed)

	result, err := f.store.GetResult(ctx, "aa01")
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, model.ErrCodeInvalidParameter, result.Error.Code)

	view, err := f.receipts.Retrieve(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusFailed, view.ReceiptCurrentStatus)
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "aa01", enclave.WorkloadEchoResult, "")
	f.submit(t, "aa02", enclave.WorkloadSHA256Digest, "")

	n, err := f.processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := f.store.ScheduledIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProcessOne_PostsNotification(t *testing.T) {
	received := make(chan notification.WorkOrderNotification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n notification.WorkOrderNotification
		_ = json.NewDecoder(r.Body).Decode(&n)
		received <- n
	}))
	defer server.Close()

	f := newFixture(t)
	f.submit(t, "aa01", enclave.WorkloadEchoResult, server.URL)

	_, err := f.processor.ProcessOne(context.Background(), "aa01")
	require.NoError(t, err)

	select {
	case n := <-received:
		assert.Equal(t, "aa01", n.WorkOrderID)
		assert.Equal(t, "bb01", n.WorkerID)
		assert.Equal(t, model.ProcessedSuccess, n.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "aa01", enclave.WorkloadEchoResult, "")
	f.submit(t, "aa02", enclave.WorkloadEchoResult, "")
	_, err := f.receipts.Create(ctx, req, model.ReceiptStatusPending, f.key)
	require.NoError(t, err)

	// aa01 crashed after writing its response, aa02 crashed before running
	_, _, err = f.store.Claim(ctx, "aa01")
	require.NoError(t, err)
	require.NoError(t, f.kv.Set(ctx, constants.TableResponses, "aa01", `{"jsonrpc":"2.0","id":1,"result":{"workOrderId":"aa01"}}`))
	_, _, err = f.store.Claim(ctx, "aa02")
	require.NoError(t, err)

	recovered, err := f.processor.Recover(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 2)

	state, err := f.store.CurrentState(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, workorder.StateCompleted, state)
	view, err := f.receipts.Retrieve(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusProcessed, view.ReceiptCurrentStatus)

	state, err = f.store.CurrentState(ctx, "aa02")
	require.NoError(t, err)
	assert.Equal(t, workorder.StateSubmitted, state)

	n, err := f.processor.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

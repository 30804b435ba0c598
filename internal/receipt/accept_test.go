package receipt

import (
	"context"
	"encoding/hex"
	"testing"

	"trustcompute/internal/model"
	"trustcompute/pkg/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcCode(t *testing.T, err error) model.ErrorCode {
	t.Helper()
	var rpcErr *model.RPCError
	require.ErrorAs(t, err, &rpcErr)
	return rpcErr.Code
}

func signedCreate(t *testing.T, key *crypto.SigningKey, req *model.WorkOrderRequest) *model.Receipt {
	t.Helper()
	receipt := &model.Receipt{
		WorkOrderID:             req.Params.WorkOrderID,
		WorkerServiceID:         req.Params.WorkerID,
		WorkerID:                req.Params.WorkerID,
		RequesterID:             req.Params.RequesterID,
		ReceiptCreateStatus:     model.ReceiptStatusPending,
		WorkOrderRequestHash:    hex.EncodeToString(crypto.RequestHash(&req.Params)),
		RequesterGeneratedNonce: "1234abcd",
		SignatureRules:          model.SignatureRules,
		ReceiptVerificationKey:  key.VerificationKey(),
	}
	sig, err := key.Sign(createMessage(receipt))
	require.NoError(t, err)
	receipt.RequesterSignature = sig
	return receipt
}

func signedUpdate(t *testing.T, key *crypto.SigningKey, id string, updateType model.ReceiptStatus, data string) *model.ReceiptUpdate {
	t.Helper()
	update := &model.ReceiptUpdate{
		WorkOrderID:            id,
		UpdaterID:              key.VerificationKey(),
		UpdateType:             updateType,
		UpdateData:             data,
		SignatureRules:         model.SignatureRules,
		ReceiptVerificationKey: key.VerificationKey(),
	}
	sig, err := key.Sign(updateMessage(update))
	require.NoError(t, err)
	update.UpdateSignature = sig
	return update
}

func TestAcceptCreate(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()
	key := testKey(t)
	req := submitRequest(t, store, "aa01", "ee01")

	t.Run("unknown work order", func(t *testing.T) {
		other := *req
		other.Params.WorkOrderID = "aa99"
		err := h.AcceptCreate(ctx, signedCreate(t, key, &other))
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, err))
	})

	t.Run("bad hex", func(t *testing.T) {
		receipt := signedCreate(t, key, req)
		receipt.RequesterID = "not-hex"
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, h.AcceptCreate(ctx, receipt)))
	})

	t.Run("wrong signature rules", func(t *testing.T) {
		receipt := signedCreate(t, key, req)
		receipt.SignatureRules = "SHA-1/RSA"
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, h.AcceptCreate(ctx, receipt)))
	})

	t.Run("hash mismatch", func(t *testing.T) {
		receipt := signedCreate(t, key, req)
		receipt.WorkOrderRequestHash = crypto.HexDigest([]byte("other"))
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, h.AcceptCreate(ctx, receipt)))
	})

	t.Run("tampered signature", func(t *testing.T) {
		receipt := signedCreate(t, key, req)
		receipt.RequesterGeneratedNonce = "99"
		assert.Equal(t, model.ErrCodeInvalidSignature, rpcCode(t, h.AcceptCreate(ctx, receipt)))
	})

	t.Run("accepted once", func(t *testing.T) {
		require.NoError(t, h.AcceptCreate(ctx, signedCreate(t, key, req)))
		err := h.AcceptCreate(ctx, signedCreate(t, key, req))
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, err))
	})
}

func TestAcceptUpdate(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()
	key := testKey(t)
	req := submitRequest(t, store, "aa01", "ee01")

	assert.Equal(t, model.ErrCodeInvalidParameter,
		rpcCode(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusPending, "x"))))

	require.NoError(t, h.AcceptCreate(ctx, signedCreate(t, key, req)))

	// no response stored yet
	responseHash := crypto.HexDigest([]byte(testResponse))
	assert.Equal(t, model.ErrCodeInvalidParameter,
		rpcCode(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusProcessed, responseHash))))

	require.NoError(t, store.Complete(ctx, "aa01", testResponse, model.ProcessedSuccess))

	tampered := signedUpdate(t, key, "aa01", model.ReceiptStatusPending, "x")
	tampered.UpdateData = "y"
	assert.Equal(t, model.ErrCodeInvalidSignature, rpcCode(t, h.AcceptUpdate(ctx, tampered)))

	assert.Equal(t, model.ErrCodeInvalidParameter,
		rpcCode(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusProcessed, "abcd"))))

	require.NoError(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusProcessed, responseHash)))

	for _, regress := range []model.ReceiptStatus{model.ReceiptStatusPending, model.ReceiptStatusFailed, model.ReceiptStatusRejected} {
		err := h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", regress, "x"))
		assert.Equal(t, model.ErrCodeInvalidParameter, rpcCode(t, err), regress.String())
	}

	require.NoError(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusCompleted, responseHash)))
	assert.Equal(t, model.ErrCodeInvalidParameter,
		rpcCode(t, h.AcceptUpdate(ctx, signedUpdate(t, key, "aa01", model.ReceiptStatusCompleted, responseHash))))

	updates, err := store.ReceiptUpdates(ctx, "aa01")
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}

// Package crypto computes the canonical work-order hashes and signs receipts.
//
// The hash layout is an interoperability contract shared with requesters and
// workers: field order and the nested hashing must not change.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"trustcompute/internal/model"
)

// MessageHash SHA-256 of message
func MessageHash(message []byte) []byte {
	digest := sha256.Sum256(message)
	return digest[:]
}

// HexDigest hex-encoded SHA-256 of message
func HexDigest(message []byte) string {
	return hex.EncodeToString(MessageHash(message))
}

// DataHash hashes data items sorted by index.
// Each item contributes dataHash, data, encryptedDataEncryptionKey and iv, in that order.
func DataHash(items []model.DataItem) []byte {
	sorted := make([]model.DataItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	var buf []byte
	for _, item := range sorted {
		buf = append(buf, item.DataHash...)
		buf = append(buf, item.Data...)
		buf = append(buf, item.EncryptedDataEncryptionKey...)
		buf = append(buf, item.IV...)
	}
	return MessageHash(buf)
}

// RequestHash hash of a work-order request's params.
// outData contributes nothing when absent, unlike ResponseHash.
func RequestHash(params *model.WorkOrderParams) []byte {
	head := MessageHash([]byte(params.RequesterNonce +
		params.WorkOrderID +
		params.WorkerID +
		params.WorkloadID +
		params.RequesterID))

	buf := make([]byte, 0, 3*sha256.Size)
	buf = append(buf, head...)
	buf = append(buf, DataHash(params.InData)...)
	if len(params.OutData) > 0 {
		buf = append(buf, DataHash(params.OutData)...)
	}
	return MessageHash(buf)
}

// ResponseHash hash of a work-order result; outData is always hashed, even when empty
func ResponseHash(result *model.WorkOrderResult) []byte {
	head := MessageHash([]byte(result.WorkerNonce +
		result.WorkOrderID +
		result.WorkerID +
		result.WorkloadID +
		result.RequesterID))

	buf := make([]byte, 0, 2*sha256.Size)
	buf = append(buf, head...)
	buf = append(buf, DataHash(result.OutData)...)
	return MessageHash(buf)
}

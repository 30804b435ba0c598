package model

import (
	"encoding/json"
	"fmt"
)

// ReceiptStatus receipt create status and update type
type ReceiptStatus int

const (
	ReceiptStatusPending   ReceiptStatus = 0
	ReceiptStatusCompleted ReceiptStatus = 1
	ReceiptStatusProcessed ReceiptStatus = 2
	ReceiptStatusFailed    ReceiptStatus = 3
	ReceiptStatusRejected  ReceiptStatus = 4
)

// Valid reports whether s is a known receipt status
func (s ReceiptStatus) Valid() bool {
	return s >= ReceiptStatusPending && s <= ReceiptStatusRejected
}

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptStatusPending:
		return "PENDING"
	case ReceiptStatusCompleted:
		return "COMPLETED"
	case ReceiptStatusProcessed:
		return "PROCESSED"
	case ReceiptStatusFailed:
		return "FAILED"
	case ReceiptStatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("ReceiptStatus(%d)", int(s))
	}
}

// SignatureRules the only supported receipt signature scheme
const SignatureRules = "SHA-256/SECP256K1"

// LastReceiptIndex sentinel update index meaning "most recent update"
const LastReceiptIndex int64 = 1 << 32

// Receipt creation record stored in wo-receipts
type Receipt struct {
	WorkOrderID             string        `json:"workOrderId"`
	WorkerServiceID         string        `json:"workerServiceId"`
	WorkerID                string        `json:"workerId"`
	RequesterID             string        `json:"requesterId"`
	ReceiptCreateStatus     ReceiptStatus `json:"receiptCreateStatus"`
	WorkOrderRequestHash    string        `json:"workOrderRequestHash"`
	RequesterGeneratedNonce string        `json:"requesterGeneratedNonce"`
	RequesterSignature      string        `json:"requesterSignature"`
	SignatureRules          string        `json:"signatureRules"`
	ReceiptVerificationKey  string        `json:"receiptVerificationKey"`
}

// ReceiptUpdate one entry of the append-only list in wo-receipt-updates
type ReceiptUpdate struct {
	WorkOrderID            string        `json:"workOrderId"`
	UpdaterID              string        `json:"updaterId"`
	UpdateType             ReceiptStatus `json:"updateType"`
	UpdateData             string        `json:"updateData"`
	UpdateSignature        string        `json:"updateSignature"`
	SignatureRules         string        `json:"signatureRules"`
	ReceiptVerificationKey string        `json:"receiptVerificationKey"`
}

// ReceiptView result of WorkOrderReceiptRetrieve
type ReceiptView struct {
	Receipt
	ReceiptCurrentStatus ReceiptStatus `json:"receiptCurrentStatus"`
}

// ReceiptUpdateView result of WorkOrderReceiptUpdateRetrieve
type ReceiptUpdateView struct {
	ReceiptUpdate
	UpdateCount int `json:"updateCount"`
}

// ReceiptIDParams params carrying only a work order id
type ReceiptIDParams struct {
	WorkOrderID string `json:"workOrderId"`
}

// ReceiptUpdateRetrieveParams params of WorkOrderReceiptUpdateRetrieve
type ReceiptUpdateRetrieveParams struct {
	WorkOrderID string `json:"workOrderId"`
	UpdaterID   string `json:"updaterId,omitempty"`
	UpdateIndex int64  `json:"updateIndex"`
}

// ReceiptLookUpParams filters of WorkOrderReceiptLookUp and WorkOrderReceiptLookUpNext
type ReceiptLookUpParams struct {
	WorkerServiceID     *string        `json:"workerServiceId,omitempty"`
	WorkerID            *string        `json:"workerId,omitempty"`
	RequesterID         *string        `json:"requesterId,omitempty"`
	ReceiptCreateStatus *ReceiptStatus `json:"receiptCreateStatus,omitempty"`
	LastLookUpTag       LookupTag      `json:"lastLookUpTag,omitempty"`
}

// DecodeParams unmarshals JSON-RPC params into out, reporting INVALID_PARAMETER on failure
func DecodeParams(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return InvalidParameter("missing params")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return InvalidParameter("invalid params: %v", err)
	}
	return nil
}

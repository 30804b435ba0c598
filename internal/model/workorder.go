package model

import "encoding/json"

// DataItem one entry of a work order's inData or outData array
type DataItem struct {
	Index                      int    `json:"index"`
	DataHash                   string `json:"dataHash,omitempty"`
	Data                       string `json:"data"`
	EncryptedDataEncryptionKey string `json:"encryptedDataEncryptionKey,omitempty"`
	IV                         string `json:"iv,omitempty"`
}

// WorkOrderParams params of a WorkOrderSubmit request
type WorkOrderParams struct {
	ResponseTimeoutMSecs    int        `json:"responseTimeoutMSecs,omitempty"`
	PayloadFormat           string     `json:"payloadFormat,omitempty"`
	ResultURI               string     `json:"resultUri,omitempty"`
	NotifyURI               string     `json:"notifyUri,omitempty"`
	WorkOrderID             string     `json:"workOrderId"`
	WorkerID                string     `json:"workerId"`
	WorkloadID              string     `json:"workloadId"`
	RequesterID             string     `json:"requesterId"`
	WorkerEncryptionKey     string     `json:"workerEncryptionKey,omitempty"`
	DataEncryptionAlgorithm string     `json:"dataEncryptionAlgorithm,omitempty"`
	EncryptedSessionKey     string     `json:"encryptedSessionKey,omitempty"`
	SessionKeyIV            string     `json:"sessionKeyIv,omitempty"`
	RequesterNonce          string     `json:"requesterNonce"`
	EncryptedRequestHash    string     `json:"encryptedRequestHash,omitempty"`
	RequesterSignature      string     `json:"requesterSignature,omitempty"`
	VerifyingKey            string     `json:"verifyingKey,omitempty"`
	InData                  []DataItem `json:"inData"`
	OutData                 []DataItem `json:"outData,omitempty"`
}

// WorkOrderRequest full JSON-RPC WorkOrderSubmit request as persisted in wo-requests
type WorkOrderRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  WorkOrderParams `json:"params"`
}

// ParseWorkOrderRequest decodes a raw WorkOrderSubmit request
func ParseWorkOrderRequest(raw []byte) (*WorkOrderRequest, error) {
	var req WorkOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WorkOrderResult result object produced by a worker
type WorkOrderResult struct {
	WorkOrderID     string     `json:"workOrderId"`
	WorkloadID      string     `json:"workloadId"`
	WorkerID        string     `json:"workerId"`
	RequesterID     string     `json:"requesterId"`
	WorkerNonce     string     `json:"workerNonce"`
	WorkerSignature string     `json:"workerSignature"`
	OutData         []DataItem `json:"outData"`
}

// WorkOrderResponse JSON-RPC response persisted in wo-responses
type WorkOrderResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  *WorkOrderResult `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

// GetResultParams params of WorkOrderGetResult
type GetResultParams struct {
	WorkOrderID string `json:"workOrderId"`
}

// Values stored in wo-processed
const (
	ProcessedSuccess = "SUCCESS"
	ProcessedFailed  = "FAILED"
)

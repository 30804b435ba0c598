package enclave

import (
	"context"
	"encoding/json"
	"strings"

	"trustcompute/internal/model"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/logger"

	"github.com/google/uuid"
)

// Executor runs work orders inside the (simulated) enclave and signs their results
type Executor struct {
	key         *crypto.SigningKey
	workerID    string
	attestation Attestation
	workloads   map[string]Workload
	nonce       func() string
}

// NewExecutor creates an executor for workerID with the built-in workloads
func NewExecutor(key *crypto.SigningKey, workerID string, attestation Attestation) *Executor {
	return &Executor{
		key:         key,
		workerID:    workerID,
		attestation: attestation,
		workloads:   DefaultWorkloads(),
		nonce:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// RegisterWorkload adds or replaces a workload under name
func (e *Executor) RegisterWorkload(name string, workload Workload) {
	e.workloads[WorkloadID(name)] = workload
}

// Attestation returns the attestation backend the executor was created with
func (e *Executor) Attestation() Attestation {
	return e.attestation
}

// VerificationKey returns the key that verifies result signatures
func (e *Executor) VerificationKey() string {
	return e.key.VerificationKey()
}

// Execute runs the request and returns the JSON-RPC response to persist.
// Failures are reported as enclave error codes inside the response.
func (e *Executor) Execute(ctx context.Context, req *model.WorkOrderRequest) *model.WorkOrderResponse {
	params := &req.Params
	resp := &model.WorkOrderResponse{JSONRPC: model.JSONRPCVersion, ID: req.ID}

	workload, ok := e.workloads[strings.ToLower(params.WorkloadID)]
	if !ok {
		resp.Error = model.NewRPCError(model.EnclaveErrValue, "unsupported workload %s", params.WorkloadID)
		return resp
	}
	for _, item := range params.InData {
		if encrypted(item) {
			resp.Error = model.NewRPCError(model.EnclaveErrValue, "encrypted inData item %d is not supported", item.Index)
			return resp
		}
	}

	outData, err := workload(params.InData)
	if err != nil {
		resp.Error = model.NewRPCError(model.EnclaveErrUnknown, "workload failed: %v", err)
		return resp
	}

	result := &model.WorkOrderResult{
		WorkOrderID: params.WorkOrderID,
		WorkloadID:  params.WorkloadID,
		WorkerID:    e.workerID,
		RequesterID: params.RequesterID,
		WorkerNonce: e.nonce(),
		OutData:     outData,
	}
	signature, err := e.key.Sign(crypto.ResponseHash(result))
	if err != nil {
		logger.ErrorCtx(ctx, "failed to sign result of work order %s: %v", params.WorkOrderID, err)
		resp.Error = model.NewRPCError(model.EnclaveErrUnknown, "failed to sign result")
		return resp
	}
	result.WorkerSignature = signature
	resp.Result = result
	return resp
}

// ExecuteRaw decodes a stored request and executes it
func (e *Executor) ExecuteRaw(ctx context.Context, raw string) *model.WorkOrderResponse {
	req, err := model.ParseWorkOrderRequest([]byte(raw))
	if err != nil {
		var envelope struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal([]byte(raw), &envelope)
		return &model.WorkOrderResponse{
			JSONRPC: model.JSONRPCVersion,
			ID:      envelope.ID,
			Error:   model.NewRPCError(model.EnclaveErrValue, "malformed work order request: %v", err),
		}
	}
	return e.Execute(ctx, req)
}

// VerifyResult checks a result signature against verificationKey
func VerifyResult(verificationKey string, result *model.WorkOrderResult) error {
	return crypto.Verify(verificationKey, crypto.ResponseHash(result), result.WorkerSignature)
}

func encrypted(item model.DataItem) bool {
	key := strings.TrimSpace(item.EncryptedDataEncryptionKey)
	return key != "" && key != "null" && key != "-"
}

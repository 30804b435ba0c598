package model

import (
	"errors"
	"fmt"
)

// ErrorCode public JSON-RPC error code
type ErrorCode int

const (
	ErrCodeSuccess          ErrorCode = 0
	ErrCodeUnknown          ErrorCode = 1
	ErrCodeInvalidParameter ErrorCode = 2 // INVALID_PARAMETER_FORMAT_OR_VALUE
	ErrCodeAccessDenied     ErrorCode = 3
	ErrCodeInvalidSignature ErrorCode = 4
	ErrCodePending          ErrorCode = 5
	ErrCodeScheduled        ErrorCode = 6
	ErrCodeProcessing       ErrorCode = 7
	ErrCodeBusy             ErrorCode = 8
	ErrCodeFailed           ErrorCode = 10

	// JSON-RPC 2.0 transport codes
	ErrCodeParseError     ErrorCode = -32700
	ErrCodeInvalidRequest ErrorCode = -32600
	ErrCodeMethodNotFound ErrorCode = -32601
	ErrCodeInvalidParams  ErrorCode = -32602
	ErrCodeInternalError  ErrorCode = -32603
)

// Enclave-originated codes, translated before they reach a requester
const (
	EnclaveErrUnknown ErrorCode = -1
	EnclaveErrValue   ErrorCode = -4
)

// RPCError JSON-RPC error object
type RPCError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRPCError creates an RPC error
func NewRPCError(code ErrorCode, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidParameter creates an INVALID_PARAMETER_FORMAT_OR_VALUE error
func InvalidParameter(format string, args ...interface{}) *RPCError {
	return NewRPCError(ErrCodeInvalidParameter, format, args...)
}

// Pending creates the PENDING signal returned on accepted submissions
func Pending(format string, args ...interface{}) *RPCError {
	return NewRPCError(ErrCodePending, format, args...)
}

// TranslateEnclaveCode maps enclave codes onto the public taxonomy
func TranslateEnclaveCode(code ErrorCode) ErrorCode {
	switch code {
	case EnclaveErrValue:
		return ErrCodeInvalidParameter
	case EnclaveErrUnknown:
		return ErrCodeUnknown
	default:
		return ErrCodeFailed
	}
}

// AsRPCError extracts an RPCError from err, wrapping anything else as UNKNOWN_ERROR
func AsRPCError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{Code: ErrCodeUnknown, Message: err.Error()}
}

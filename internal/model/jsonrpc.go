package model

import "encoding/json"

// JSONRPCVersion protocol version carried in every envelope
const JSONRPCVersion = "2.0"

// RPCRequest JSON-RPC request envelope
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCResponse JSON-RPC response envelope
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCResult builds a success envelope
func NewRPCResult(id json.RawMessage, result interface{}) *RPCResponse {
	return &RPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewRPCErrorResponse builds an error envelope
func NewRPCErrorResponse(id json.RawMessage, err *RPCError) *RPCResponse {
	return &RPCResponse{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

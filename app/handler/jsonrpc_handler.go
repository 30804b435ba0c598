package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"trustcompute/internal/model"
	"trustcompute/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MethodFunc handles the params of one JSON-RPC method
type MethodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// JSONRPCHandler dispatches JSON-RPC 2.0 requests to registered methods
type JSONRPCHandler struct {
	methods map[string]MethodFunc
}

// NewJSONRPCHandler creates an empty dispatcher
func NewJSONRPCHandler() *JSONRPCHandler {
	return &JSONRPCHandler{methods: make(map[string]MethodFunc)}
}

// Register binds fn to method
func (h *JSONRPCHandler) Register(method string, fn MethodFunc) {
	h.methods[method] = fn
}

// Methods returns the registered method names
func (h *JSONRPCHandler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle serves one JSON-RPC request
// @Summary JSON-RPC endpoint
// @Description Work order, worker registry and receipt methods
// @Tags jsonrpc
// @Accept json
// @Produce json
// @Success 200 {object} model.RPCResponse
// @Router / [post]
func (h *JSONRPCHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, model.NewRPCErrorResponse(nil, model.NewRPCError(model.ErrCodeParseError, "failed to read request body")))
		return
	}

	var req model.RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, model.NewRPCErrorResponse(nil, model.NewRPCError(model.ErrCodeParseError, "parse error: %v", err)))
		return
	}

	c.JSON(http.StatusOK, h.Dispatch(c.Request.Context(), &req))
}

// Dispatch runs one decoded request and builds its response envelope
func (h *JSONRPCHandler) Dispatch(ctx context.Context, req *model.RPCRequest) *model.RPCResponse {
	if req.JSONRPC != model.JSONRPCVersion || req.Method == "" {
		return model.NewRPCErrorResponse(req.ID, model.NewRPCError(model.ErrCodeInvalidRequest, "invalid JSON-RPC request"))
	}
	fn, ok := h.methods[req.Method]
	if !ok {
		return model.NewRPCErrorResponse(req.ID, model.NewRPCError(model.ErrCodeMethodNotFound, "method %s not found", req.Method))
	}

	result, err := fn(withRequest(ctx, req), req.Params)
	if err != nil {
		rpcErr := model.AsRPCError(err)
		if rpcErr.Code == model.ErrCodeUnknown {
			logger.ErrorCtx(ctx, "%s failed: %v", req.Method, err)
		}
		return model.NewRPCErrorResponse(req.ID, rpcErr)
	}
	return model.NewRPCResult(req.ID, result)
}

type requestKey struct{}

func withRequest(ctx context.Context, req *model.RPCRequest) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// requestFrom returns the envelope being dispatched
func requestFrom(ctx context.Context) *model.RPCRequest {
	req, _ := ctx.Value(requestKey{}).(*model.RPCRequest)
	return req
}

// compactJSON compacts a raw JSON document, keeping it as-is when it does not parse
func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

package rpc

import "fmt"

// Standard JSON-RPC 2.0 error codes the daemon is known to use.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	// CodeNotFound is the daemon's application-level code for a missing
	// entity (unknown plan/task/target id).
	CodeNotFound = 1004
)

// CallError is a daemon-reported JSON-RPC error object. It satisfies error
// so remote failures propagate through normal error returns; callers that
// care about the class of failure inspect Code.
type CallError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	// Method is filled in by the gateway for context; it is not part of the
	// wire error object.
	Method string `json:"-"`
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("rpc: %s: daemon error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("rpc: daemon error %d: %s", e.Code, e.Message)
}

// NotFound reports whether the error represents a missing entity.
func (e *CallError) NotFound() bool {
	return e.Code == CodeNotFound
}

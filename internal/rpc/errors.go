// Package rpc is the client-side call layer: a JSON request/response
// transport with a per-call authorization hook and a global response
// error observer.
package rpc

import (
	"errors"
	"fmt"
)

// Machine-readable failure codes carried by RPC error responses.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// Error is a failed RPC response. Code distinguishes authorization
// failures, which the global interceptor handles, from everything else,
// which call sites handle locally.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err is an RPC authorization failure.
func IsUnauthorized(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeUnauthorized
}

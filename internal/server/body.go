package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// BodyErrorCode is the closed set of request body failure modes.
type BodyErrorCode string

const (
	BodyPayloadTooLarge BodyErrorCode = "payload_too_large"
	BodyMalformedJSON   BodyErrorCode = "malformed_json"
	BodyRequestTimeout  BodyErrorCode = "request_timeout"
	BodyRequestAborted  BodyErrorCode = "request_aborted"
	BodyInvalidRequest  BodyErrorCode = "invalid_request"
)

// BodyError is a request body failure, carrying its HTTP and JSON-RPC
// mapping.
type BodyError struct {
	Code    BodyErrorCode
	Message string
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the failure to a response status code.
func (e *BodyError) HTTPStatus() int {
	switch e.Code {
	case BodyPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case BodyRequestTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadRequest
	}
}

// RPCCode maps the failure to a JSON-RPC error code.
func (e *BodyError) RPCCode() int {
	switch e.Code {
	case BodyPayloadTooLarge:
		return PayloadTooLarge
	case BodyMalformedJSON:
		return ParseError
	case BodyRequestTimeout:
		return BodyTimeout
	default:
		return InvalidRequest
	}
}

// ReadBody reads the request body under a size cap and a hard timeout.
// A declared Content-Length over the cap is rejected before any read. An
// empty or whitespace-only body returns nil bytes with no error.
func ReadBody(r *http.Request, maxBytes int64, timeout time.Duration) ([]byte, *BodyError) {
	if r.ContentLength > maxBytes {
		return nil, &BodyError{
			Code:    BodyPayloadTooLarge,
			Message: fmt.Sprintf("declared body size %d exceeds limit %d", r.ContentLength, maxBytes),
		}
	}

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		done <- readResult{data, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			// A connection-level deadline surfaces as a net.Error with
			// Timeout set, distinct from a client abort.
			var netErr net.Error
			if errors.As(res.err, &netErr) && netErr.Timeout() {
				return nil, &BodyError{
					Code:    BodyRequestTimeout,
					Message: fmt.Sprintf("body not received within %s", timeout),
				}
			}
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, io.ErrUnexpectedEOF) {
				return nil, &BodyError{Code: BodyRequestAborted, Message: "client aborted the request"}
			}
			return nil, &BodyError{Code: BodyRequestAborted, Message: "body read failed: " + res.err.Error()}
		}
		if int64(len(res.data)) > maxBytes {
			// Drain what the client is still sending so the connection
			// can be reused.
			io.Copy(io.Discard, r.Body)
			return nil, &BodyError{
				Code:    BodyPayloadTooLarge,
				Message: fmt.Sprintf("body exceeds limit %d", maxBytes),
			}
		}
		if len(bytes.TrimSpace(res.data)) == 0 {
			return nil, nil
		}
		return res.data, nil

	case <-r.Context().Done():
		return nil, &BodyError{Code: BodyRequestAborted, Message: "client aborted the request"}

	case <-timer.C:
		return nil, &BodyError{
			Code:    BodyRequestTimeout,
			Message: fmt.Sprintf("body not received within %s", timeout),
		}
	}
}

// ParseRequests decodes a JSON-RPC request or batch. An empty or
// whitespace-only body yields no requests.
func ParseRequests(body []byte) ([]JSONRPCRequest, *BodyError) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var batch []JSONRPCRequest
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, &BodyError{Code: BodyMalformedJSON, Message: "invalid JSON: " + err.Error()}
		}
		if len(batch) == 0 {
			return nil, &BodyError{Code: BodyInvalidRequest, Message: "empty batch"}
		}
		return batch, nil
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, &BodyError{Code: BodyMalformedJSON, Message: "invalid JSON: " + err.Error()}
	}
	return []JSONRPCRequest{req}, nil
}

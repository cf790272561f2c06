// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the bounded HTTP body helpers shared by the
// revocation client and server. Every read is capped: revocation
// records and invocations are a few kilobytes, so anything near the
// limit is a misbehaving peer.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize bounds request and response body reads: 1 MiB.
const MaxBodySize int64 = 1 << 20

// ReadResponse reads a response body up to MaxBodySize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxBodySize))
}

// DecodeResponse reads a response body (up to MaxBodySize bytes) and
// JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an error response body for a diagnostic message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	return string(data)
}

// ReadRequest reads a request body, failing once it exceeds
// MaxBodySize.
func ReadRequest(writer http.ResponseWriter, request *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(writer, request.Body, MaxBodySize))
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(v)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes an ErrorResponse with the given status.
func WriteError(writer http.ResponseWriter, status int, format string, args ...any) {
	WriteJSON(writer, status, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

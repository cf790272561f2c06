// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/custody/lib/netutil"
)

// NewHandler serves registry over HTTP.
func NewHandler(registry *Registry, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /revocations/{id}", func(writer http.ResponseWriter, request *http.Request) {
		id := request.PathValue("id")
		record, found, err := registry.Lookup(request.Context(), id)
		if err != nil {
			logger.Error("revocation lookup failed", "delegation", id, "error", err)
			netutil.WriteError(writer, http.StatusInternalServerError, "lookup failed")
			return
		}
		if !found {
			netutil.WriteError(writer, http.StatusNotFound, "delegation %s is not revoked", id)
			return
		}
		netutil.WriteJSON(writer, http.StatusOK, record)
	})

	mux.HandleFunc("POST /revocations", func(writer http.ResponseWriter, request *http.Request) {
		body, err := netutil.ReadRequest(writer, request)
		if err != nil {
			netutil.WriteError(writer, http.StatusRequestEntityTooLarge, "reading invocation: %v", err)
			return
		}
		record, err := registry.Revoke(request.Context(), body)
		if errors.Is(err, ErrRejected) {
			netutil.WriteError(writer, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			logger.Error("recording revocation failed", "error", err)
			netutil.WriteError(writer, http.StatusInternalServerError, "recording revocation failed")
			return
		}
		netutil.WriteJSON(writer, http.StatusOK, record)
	})

	return mux
}

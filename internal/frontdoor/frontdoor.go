// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package frontdoor wires the admission pipeline and the forwarder
// into a single http.Handler, in the order spec §2 mandates: identity
// extraction happens inside admission, then admission, then forward.
package frontdoor

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/quotagate/gateway/internal/admission"
	"github.com/quotagate/gateway/internal/forwarder"
	"github.com/quotagate/gateway/internal/gwerr"
)

// Handler is the gateway's single http.Handler: every method and path
// lands here and is routed through admission, then the forwarder.
type Handler struct {
	Pipeline  *admission.Pipeline
	Forwarder *forwarder.Forwarder
	Logger    *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := h.Logger.With(slog.String("request_id", requestID), slog.String("path", r.URL.Path), slog.String("method", r.Method))

	decision := h.Pipeline.Run(r)
	if decision.Err != nil {
		switch {
		case errors.Is(decision.Err, gwerr.ErrUnauthorized):
			logger.Info("rejected: unauthorized")
			w.WriteHeader(http.StatusUnauthorized)
		case errors.Is(decision.Err, gwerr.ErrRateLimited):
			logger.Info("rejected: rate limited", slog.String("bucket_code", decision.EffectiveQuota.Code), slog.String("subject", decision.Key.Subject))
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			logger.Error("rejected: internal error", slog.String("error", decision.Err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if err := h.Forwarder.ServeHTTP(w, r); err != nil {
		logger.Error("forwarding failed", slog.String("error", err.Error()))
		// ServeHTTP only returns before writing a status when the
		// failure happened before the upstream responded at all.
		w.WriteHeader(http.StatusInternalServerError)
	}
}

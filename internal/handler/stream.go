package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/handoff"
	"github.com/capitalize-ai/sqlchat/internal/middleware"
	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
)

const (
	invalidStreamMessage  = "Invalid or expired stream ID"
	defaultReleaseTimeout = 5 * time.Second
)

// ChatRunner runs one chat turn, sending every event to emit.
type ChatRunner interface {
	Run(ctx context.Context, query, sessionID string, emit func(model.AgentEvent) error) error
}

// StreamHandler handles the SSE stream of a submitted chat request.
type StreamHandler struct {
	streams        Streams
	chat           ChatRunner
	logger         *logger.Logger
	releaseTimeout time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(streams Streams, chat ChatRunner, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		streams:        streams,
		chat:           chat,
		logger:         log,
		releaseTimeout: defaultReleaseTimeout,
	}
}

// Stream handles GET /api/chat/stream/{streamID}
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	streamID := chi.URLParam(r, "streamID")
	log := h.logger.ForStream(streamID, middleware.GetCorrelationID(ctx))

	if err := middleware.ValidateStreamID(streamID); err != nil {
		writeSSEError(w, http.StatusNotFound, invalidStreamMessage)
		return
	}

	req, err := h.streams.ClaimOrReplay(ctx, streamID)
	if err != nil {
		if errors.Is(err, handoff.ErrNotFound) {
			writeSSEError(w, http.StatusNotFound, invalidStreamMessage)
			return
		}
		log.Error("failed to claim stream", zap.Error(err))
		writeSSEError(w, http.StatusServiceUnavailable, "stream store unavailable")
		return
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.releaseTimeout)
		defer cancel()
		if err := h.streams.ReleaseClaim(releaseCtx, streamID); err != nil {
			log.Warn("failed to release stream claim", zap.Error(err))
		}
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log = log.With(logger.SessionID(req.SessionID), logger.UserID(middleware.GetUserID(ctx)))

	emit := func(ev model.AgentEvent) error {
		// Nothing is written once the client has gone away.
		if err := ctx.Err(); err != nil {
			return err
		}
		return sendSSEEvent(w, flusher, ev)
	}

	if err := h.chat.Run(ctx, req.Query, req.SessionID, emit); err != nil {
		if ctx.Err() != nil {
			log.Info("SSE client disconnected")
			return
		}
		log.Error("chat stream aborted", zap.Error(err))
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

// writeSSEError answers with a stream holding a single error event.
func writeSSEError(w http.ResponseWriter, status int, message string) {
	setSSEHeaders(w)
	w.WriteHeader(status)
	data, _ := json.Marshal(model.Error(message))
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev model.AgentEvent) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

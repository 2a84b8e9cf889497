// Package handler implements the HTTP endpoints of the API server.
package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/middleware"
	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
)

// StreamPathPrefix is the path clients open with EventSource.
const StreamPathPrefix = "/api/chat/stream/"

// Streams parks chat requests between submission and stream open.
type Streams interface {
	Submit(ctx context.Context, req model.ChatRequest) (string, error)
	ClaimOrReplay(ctx context.Context, streamID string) (*model.ChatRequest, error)
	ReleaseClaim(ctx context.Context, streamID string) error
}

// ChatHandler handles chat submission.
type ChatHandler struct {
	streams Streams
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(streams Streams, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		streams: streams,
		logger:  log,
	}
}

// Submit handles POST /api/chat
func (h *ChatHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	if err := middleware.ValidateChatRequest(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	streamID, err := h.streams.Submit(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to park chat request",
			zap.Error(err),
			logger.SessionID(req.SessionID),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to start chat")
		return
	}

	writeJSON(w, http.StatusOK, &model.ChatInitResponse{
		SessionID: req.SessionID,
		StreamURL: StreamPathPrefix + streamID,
	})
}

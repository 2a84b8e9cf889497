package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/semantic"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
)

// SchemaLayer exposes the physical schema merged with semantic metadata.
type SchemaLayer interface {
	Dialect() string
	PromptContext(ctx context.Context) (string, error)
	ListTables(ctx context.Context) ([]semantic.TableSummary, error)
	Table(ctx context.Context, name string) (*semantic.TableDetail, error)
}

// PromptContextResponse is the body of GET /api/schema/context/prompt.
type PromptContextResponse struct {
	Dialect string `json:"dialect"`
	Context string `json:"context"`
}

// SchemaHandler handles the schema browser endpoints.
type SchemaHandler struct {
	layer  SchemaLayer
	logger *logger.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(layer SchemaLayer, log *logger.Logger) *SchemaHandler {
	return &SchemaHandler{
		layer:  layer,
		logger: log,
	}
}

// List handles GET /api/schema
func (h *SchemaHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.layer.ListTables(r.Context())
	if err != nil {
		h.logger.Error("failed to list tables", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tables")
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// Table handles GET /api/schema/{table}
func (h *SchemaHandler) Table(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")

	detail, err := h.layer.Table(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to describe table", zap.Error(err), zap.String("table", name))
		writeError(w, http.StatusInternalServerError, "failed to describe table")
		return
	}
	if len(detail.Columns) == 0 {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// PromptContext handles GET /api/schema/context/prompt
func (h *SchemaHandler) PromptContext(w http.ResponseWriter, r *http.Request) {
	text, err := h.layer.PromptContext(r.Context())
	if err != nil {
		h.logger.Error("failed to build prompt context", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build prompt context")
		return
	}
	writeJSON(w, http.StatusOK, &PromptContextResponse{
		Dialect: h.layer.Dialect(),
		Context: text,
	})
}

// Package handlers provides HTTP handlers for the server.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cargodocs/cargodocs/internal/docservices"
	"github.com/cargodocs/cargodocs/internal/extract"
	"github.com/cargodocs/cargodocs/internal/pipeline"
)

// ConfigProvider is an interface that defines the configuration access methods used by the handlers.
type ConfigProvider interface {
	// IsAllowed checks if a given document type is allowed based on the present configuration state.
	IsAllowed(string) bool
	// TemplatePath returns the generation template for a document type, "" if none.
	TemplatePath(string) string
}

// Pipeline processes one uploaded document and returns the generated result.
type Pipeline interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Process is a handler for processing uploaded PDF documents.
type Process struct {
	config        ConfigProvider
	pipe          Pipeline
	maxUploadSize int64
}

// NewProcess creates a new Process handler.
func NewProcess(cfg ConfigProvider, pipe Pipeline, maxUploadSize int64) *Process {
	return &Process{
		config:        cfg,
		pipe:          pipe,
		maxUploadSize: maxUploadSize,
	}
}

// ServeHTTP handles incoming HTTP requests for document processing.
func (h *Process) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	doctype := filepath.Clean(r.PathValue("doctype"))
	if doctype == "" || doctype == "." || strings.Contains(doctype, "..") {
		http.Error(w, "Invalid document type in URL", http.StatusForbidden)
		return
	}

	slog.Info("Request recv'd", "req_id", reqID, "doctype", doctype)

	if !h.config.IsAllowed(doctype) {
		http.Error(w, "Invalid document type in URL", http.StatusForbidden)
		slog.Error("Invalid document type in URL", "req_id", reqID, "doctype", doctype)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Uploaded file is too large", http.StatusRequestEntityTooLarge)
			slog.Error("Uploaded file is too large", "req_id", reqID, "doctype", doctype)
			return
		}
		http.Error(w, "Missing file in upload", http.StatusBadRequest)
		slog.Error("Missing file in upload", "req_id", reqID, "doctype", doctype, "err", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Uploaded file is too large", http.StatusRequestEntityTooLarge)
			slog.Error("Uploaded file is too large", "req_id", reqID, "doctype", doctype)
			return
		}
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		slog.Error("Error reading the file", "req_id", reqID, "doctype", doctype, "err", err)
		return
	}

	pages, err := extract.Validate(data)
	if err != nil {
		http.Error(w, "Uploaded file is not a valid PDF", http.StatusBadRequest)
		slog.Error("Uploaded file is not a valid PDF", "req_id", reqID, "doctype", doctype, "err", err)
		return
	}

	result, err := h.pipe.Process(r.Context(), pipeline.Request{
		JobID:        reqID,
		DocType:      doctype,
		Filename:     filepath.Base(header.Filename),
		TemplatePath: h.config.TemplatePath(doctype),
		Pages:        pages,
		PDF:          data,
	})
	if err != nil {
		status := statusForError(err)
		http.Error(w, http.StatusText(status), status)
		slog.Error("Processing failed", "req_id", reqID, "doctype", doctype, "err", err)
		return
	}

	slog.Info("Document processed", "req_id", reqID, "doctype", doctype, "pages", pages,
		"confidence", result.MeanConfidence, "out", result.Filename)

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if _, err := w.Write(result.Data); err != nil {
		slog.Error("Failed to write response", "req_id", reqID, "doctype", doctype, "err", err)
	}
}

// statusForError maps pipeline failures to response codes. Upstream error
// details are logged, never returned to the caller.
func statusForError(err error) int {
	switch {
	case errors.Is(err, docservices.ErrJobTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrExtractStage), errors.Is(err, pipeline.ErrGenerateStage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/notify"
	"github.com/aluiziolira/go-scrape-templates/pipeline"
	"github.com/aluiziolira/go-scrape-templates/popup"
	"github.com/aluiziolira/go-scrape-templates/scraper"
)

// exportResponse is returned when an export produced no attachment.
type exportResponse struct {
	Status      string               `json:"status"`
	Message     string               `json:"message,omitempty"`
	ErrorType   string               `json:"error_type,omitempty"`
	NavigateURL string               `json:"navigate_url,omitempty"`
	Result      *models.ExportResult `json:"result,omitempty"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := s.controller.CheckEnvironment(r.Context())
	if err != nil {
		s.logger.Error("environment check failed", slog.Any("error", err))
		s.respondWithError(w, http.StatusBadGateway, "Could not resolve the active tab")
		return
	}
	s.respondWithJSON(w, http.StatusOK, env)
}

// handleExport streams the CSV as an attachment. Outcomes without a file
// are answered with a JSON status instead.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	var notes notify.Recorder
	exporter := pipeline.NewExporter(pipeline.ResponseDownloader{W: ww}, &notes, s.exporterOpts...)

	result, err := s.controller.ExportWith(r.Context(), exporter, &notes)
	if err != nil && ww.Status() != 0 {
		// The attachment is partly sent; the status line cannot change.
		s.logger.Error("export aborted mid-attachment",
			slog.Int("bytes_sent", ww.BytesWritten()),
			slog.Any("error", err),
		)
		return
	}

	message := ""
	if last, ok := notes.Last(); ok {
		message = last.Message
	}

	switch {
	case errors.Is(err, popup.ErrBusy):
		s.respondWithJSON(w, http.StatusConflict, exportResponse{Status: "busy", Message: message})
	case err != nil:
		s.respondWithJSON(w, http.StatusBadGateway, exportResponse{
			Status:    "failed",
			Message:   message,
			ErrorType: scraper.ErrorTypeLabel(err),
		})
	case result.Status == models.StatusExported:
		// The attachment has already been written.
	case result.Status == models.StatusIneligible:
		s.respondWithJSON(w, http.StatusConflict, exportResponse{
			Status:      string(result.Status),
			Message:     message,
			NavigateURL: s.controller.NavigateURL(),
			Result:      result,
		})
	default:
		s.respondWithJSON(w, http.StatusOK, exportResponse{Status: string(result.Status), Message: message, Result: result})
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

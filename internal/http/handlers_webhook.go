package http

import (
	"errors"
	"io"
	"net/http"

	"fincontrol/internal/kiwify"
	applog "fincontrol/internal/log"
	"fincontrol/internal/services"
)

type webhookResponse struct {
	OK       bool   `json:"ok"`
	Stage    string `json:"stage,omitempty"`
	Error    string `json:"error,omitempty"`
	SaleID   string `json:"sale_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Inserted bool   `json:"inserted,omitempty"`
}

var webhookStatus = map[string]int{
	services.StageAuth:       http.StatusUnauthorized,
	services.StageValidation: http.StatusBadRequest,
	services.StageInsert:     http.StatusInternalServerError,
	services.StageException:  http.StatusInternalServerError,
}

// handleKiwifyWebhook reads the raw body before decoding so the signature
// is checked over the exact bytes sent.
func (s *Server) handleKiwifyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, webhookResponse{Stage: services.StageValidation, Error: "body too large or unreadable"})
		return
	}

	res, err := s.deps.Webhook.Ingest(r.Context(), body, kiwify.SignatureFromRequest(r))
	if err != nil {
		var werr *services.WebhookError
		stage := services.StageException
		if errors.As(err, &werr) {
			stage = werr.Stage
		}
		status, ok := webhookStatus[stage]
		if !ok {
			status = http.StatusInternalServerError
		}
		msg := err.Error()
		if status == http.StatusInternalServerError {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Webhook ingestion failed",
				applog.FieldStage, stage,
				applog.FieldError, err)
			msg = msgInternal
		}
		WriteJSON(w, status, webhookResponse{Stage: stage, Error: msg})
		return
	}

	s.invalidate(res.UserID)
	WriteJSON(w, http.StatusOK, webhookResponse{
		OK:       true,
		SaleID:   res.SaleID,
		Status:   string(res.Status),
		Inserted: res.Inserted,
	})
}

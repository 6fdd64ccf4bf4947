package handlers

import (
	"net/http"

	"ecoproof-backend/internal/middleware"
	"ecoproof-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// EvidenceHandler handles evidence photo uploads
type EvidenceHandler struct {
	evidence *services.EvidenceService
}

// NewEvidenceHandler creates a new evidence handler; evidence may be nil
// when object storage is not configured
func NewEvidenceHandler(evidence *services.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{evidence: evidence}
}

// Upload handles POST /api/v1/evidence/upload
func (h *EvidenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.evidence == nil {
		respondError(w, errUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}

	var req services.UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	resp, err := h.evidence.PresignUpload(r.Context(), userID, req.ContentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("object_key", resp.ObjectKey).
		Msg("Pre-signed URL generated")

	respondJSON(w, http.StatusOK, resp)
}

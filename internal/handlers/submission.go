package handlers

import (
	"net/http"

	"ecoproof-backend/internal/middleware"
	"ecoproof-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SubmissionHandler handles observation lifecycle requests
type SubmissionHandler struct {
	submissions *services.SubmissionStore
	rewards     *services.RewardEngine
	hub         *services.EventHub
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(
	submissions *services.SubmissionStore,
	rewards *services.RewardEngine,
	hub *services.EventHub,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		rewards:     rewards,
		hub:         hub,
	}
}

// Create handles POST /api/v1/submissions
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	id, err := h.submissions.Submit(r.Context(), userID, req)
	if err != nil {
		log.Info().Err(err).Str("user_id", userID).Msg("Submission rejected")
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"data_id": id})
}

// List handles GET /api/v1/submissions
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.All())
}

// Get handles GET /api/v1/submissions/{id}
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	sub, err := h.submissions.Get(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// Status handles GET /api/v1/submissions/{id}/status
func (h *SubmissionHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	status, err := h.submissions.Status(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data_id": id, "status": status})
}

// Expiration handles GET /api/v1/submissions/{id}/expiration
func (h *SubmissionHandler) Expiration(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	exp, err := h.submissions.ExpirationTime(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data_id": id, "expiration_timestamp": exp})
}

// Expirations handles GET /api/v1/submissions/expirations[?within=]
func (h *SubmissionHandler) Expirations(w http.ResponseWriter, r *http.Request) {
	within, ok, err := queryDuration(r, "within")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if ok {
		respondJSON(w, http.StatusOK, h.submissions.ExpiringWithin(within))
		return
	}
	respondJSON(w, http.StatusOK, h.submissions.ExpirationTimes())
}

// Finalize handles POST /api/v1/submissions/{id}/finalize
func (h *SubmissionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.submissions.Finalize(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if res.Changed {
		h.hub.NotifyFinalized(res.UserID, *res)
	}
	respondJSON(w, http.StatusOK, res)
}

// Reward handles POST /api/v1/submissions/{id}/reward. Rewards go through
// the ledger when one is configured and to the in-app balance otherwise.
func (h *SubmissionHandler) Reward(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var conf *services.Confirmation
	if h.rewards.LedgerEnabled() {
		conf, err = h.rewards.Reward(r.Context(), id)
	} else {
		conf, err = h.rewards.CreditBalance(r.Context(), id)
	}
	if err != nil {
		log.Info().
			Err(err).
			Int64("submission_id", id).
			Str("caller_id", middleware.GetUserID(r.Context())).
			Msg("Reward not paid")
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, conf)
}

// MarkRewarded handles POST /api/v1/submissions/{id}/mark-rewarded
func (h *SubmissionHandler) MarkRewarded(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := h.rewards.MarkRewardedWithoutTransfer(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data_id": id, "rewarded": true})
}

// ByCity handles GET /api/v1/submissions/city/{city}
func (h *SubmissionHandler) ByCity(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.ByCity(chi.URLParam(r, "city")))
}

// ByUser handles GET /api/v1/users/{id}/submissions
func (h *SubmissionHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.ByUser(chi.URLParam(r, "id")))
}

// UserSummary handles GET /api/v1/users/{id}/submissions/summary
func (h *SubmissionHandler) UserSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.Summaries(chi.URLParam(r, "id")))
}

// UserLocations handles GET /api/v1/users/{id}/submissions/locations
func (h *SubmissionHandler) UserLocations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.Locations(chi.URLParam(r, "id")))
}

// UserRewarded handles GET /api/v1/users/{id}/submissions/rewarded
func (h *SubmissionHandler) UserRewarded(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.submissions.Rewarded(chi.URLParam(r, "id")))
}

// ByChallenge handles GET /api/v1/challenges/{id}/submissions[?user=]
func (h *SubmissionHandler) ByChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if user := r.URL.Query().Get("user"); user != "" {
		respondJSON(w, http.StatusOK, h.submissions.ByUserAndChallenge(user, id))
		return
	}
	respondJSON(w, http.StatusOK, h.submissions.ByChallenge(id))
}

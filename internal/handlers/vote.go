package handlers

import (
	"net/http"
	"strconv"

	"ecoproof-backend/internal/middleware"
	"ecoproof-backend/internal/models"
	"ecoproof-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// VoteHandler handles peer validation requests
type VoteHandler struct {
	votes       *services.VoteLedger
	submissions *services.SubmissionStore
	hub         *services.EventHub
}

// NewVoteHandler creates a new vote handler
func NewVoteHandler(votes *services.VoteLedger, submissions *services.SubmissionStore, hub *services.EventHub) *VoteHandler {
	return &VoteHandler{
		votes:       votes,
		submissions: submissions,
		hub:         hub,
	}
}

type voteRequest struct {
	Value *bool `json:"vote_value"`
}

func decodeVote(r *http.Request) (bool, error) {
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		return false, err
	}
	if req.Value == nil {
		return false, models.ErrInvalidInput.WithCause(errMissingVoteValue)
	}
	return *req.Value, nil
}

// notifyOwner pushes the new tally to the submission owner
func (h *VoteHandler) notifyOwner(id int64) {
	sub, err := h.submissions.Get(id)
	if err != nil {
		return
	}
	h.hub.NotifyVote(sub.UserID, h.votes.Summary(id))
}

// Cast handles POST /api/v1/submissions/{id}/votes
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	value, err := decodeVote(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.votes.Cast(r.Context(), middleware.GetUserID(r.Context()), id, value); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.notifyOwner(id)
	respondJSON(w, http.StatusCreated, h.votes.Summary(id))
}

// Update handles PUT /api/v1/submissions/{id}/votes
func (h *VoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	value, err := decodeVote(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.votes.Update(r.Context(), middleware.GetUserID(r.Context()), id, value); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.notifyOwner(id)
	respondJSON(w, http.StatusOK, h.votes.Summary(id))
}

// Delete handles DELETE /api/v1/submissions/{id}/votes
func (h *VoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := h.votes.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.notifyOwner(id)
	respondJSON(w, http.StatusOK, h.votes.Summary(id))
}

// Summary handles GET /api/v1/submissions/{id}/votes/summary
func (h *VoteHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !h.submissions.Exists(id) {
		respondServiceError(w, r, models.ErrSubmissionNotFound)
		return
	}
	respondJSON(w, http.StatusOK, h.votes.Summary(id))
}

// ByUser handles GET /api/v1/users/{id}/votes
func (h *VoteHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.votes.ByUser(chi.URLParam(r, "id")))
}

// Leaderboard handles GET /api/v1/leaderboard?by=&limit=
func (h *VoteHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rankBy, err := services.ParseRankBy(r.URL.Query().Get("by"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	respondJSON(w, http.StatusOK, h.votes.Leaderboard(rankBy, limit))
}

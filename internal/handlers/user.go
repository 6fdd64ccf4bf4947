package handlers

import (
	"net/http"

	"ecoproof-backend/internal/middleware"
	"ecoproof-backend/internal/models"
	"ecoproof-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users  *services.UserDirectory
	tokens *services.TokenService
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *services.UserDirectory, tokens *services.TokenService) *UserHandler {
	return &UserHandler{
		users:  users,
		tokens: tokens,
	}
}

// SessionResponse is returned when a profile is synced
type SessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// UpsertUser handles POST /api/v1/users
func (h *UserHandler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if err := decodeJSON(r, &profile); err != nil {
		respondServiceError(w, r, err)
		return
	}

	user, err := h.users.Upsert(r.Context(), profile)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate token")
		respondError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, SessionResponse{User: user, Token: token})
}

// ListUsers handles GET /api/v1/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.users.All())
}

// GetUser handles GET /api/v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetBalance handles GET /api/v1/users/{id}/balance
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": id,
		"balance": h.users.Balance(id),
	})
}

// SetWallet handles PUT /api/v1/users/me/wallet
func (h *UserHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.users.SetPayoutAddress(r.Context(), userID, req.WalletAddress); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDevice handles PUT /api/v1/users/me/device
func (h *UserHandler) SetDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceToken string `json:"device_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.users.SetDeviceToken(r.Context(), userID, req.DeviceToken); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRole handles PUT /api/v1/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondServiceError(w, r, models.ErrInvalidInput.WithCause(err))
		return
	}

	callerID := middleware.GetUserID(r.Context())
	targetID := chi.URLParam(r, "id")
	if err := h.users.SetRole(r.Context(), callerID, targetID, role); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"user_id": targetID, "role": string(role)})
}

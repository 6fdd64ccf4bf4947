package handlers

import (
	"net/http"
	"time"

	"ecoproof-backend/internal/models"
	"ecoproof-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ChallengeHandler handles campaign requests
type ChallengeHandler struct {
	challenges *services.ChallengeRegistry
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(challenges *services.ChallengeRegistry) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

// CreateChallengeBody is the JSON form of a new challenge
type CreateChallengeBody struct {
	Title           string  `json:"title"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	RadiusM         float64 `json:"radius_m"`
	DurationSeconds int64   `json:"duration_seconds"`
	PictureURL      string  `json:"picture_url"`
}

// Create handles POST /api/v1/challenges
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateChallengeBody
	if err := decodeJSON(r, &body); err != nil {
		respondServiceError(w, r, err)
		return
	}

	id, err := h.challenges.Create(r.Context(), services.CreateChallengeRequest{
		Title:      body.Title,
		Center:     models.Coordinates{Latitude: body.Latitude, Longitude: body.Longitude},
		RadiusM:    body.RadiusM,
		TTL:        time.Duration(body.DurationSeconds) * time.Second,
		PictureURL: body.PictureURL,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	c, err := h.challenges.Get(id)
	if err != nil {
		log.Error().Err(err).Int64("challenge_id", id).Msg("Created challenge vanished")
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// Get handles GET /api/v1/challenges/{id}
func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	c, err := h.challenges.Get(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// List handles GET /api/v1/challenges
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.challenges.All())
}

// Active handles GET /api/v1/challenges/active[?lat=&lon=]
func (h *ChallengeHandler) Active(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("lat") == "" && r.URL.Query().Get("lon") == "" {
		respondJSON(w, http.StatusOK, h.challenges.Active())
		return
	}
	coords, err := queryCoordinates(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.challenges.ActiveAt(coords))
}

// Nearby handles GET /api/v1/challenges/nearby?lat=&lon=&radius=
func (h *ChallengeHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	coords, err := queryCoordinates(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.challenges.WithinRadius(coords, radius))
}

// Expiring handles GET /api/v1/challenges/expiring?within=
func (h *ChallengeHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	within, ok, err := queryDuration(r, "within")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !ok {
		within = time.Hour
	}
	respondJSON(w, http.StatusOK, h.challenges.ExpiringWithin(within))
}

func queryCoordinates(r *http.Request) (models.Coordinates, error) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		return models.Coordinates{}, err
	}
	lon, err := queryFloat(r, "lon")
	if err != nil {
		return models.Coordinates{}, err
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, nil
}

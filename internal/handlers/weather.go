package handlers

import (
	"errors"
	"net/http"

	"ecoproof-backend/internal/models"
	"ecoproof-backend/internal/weather"

	"github.com/rs/zerolog/log"
)

// WeatherHandler serves current conditions
type WeatherHandler struct {
	client  *weather.Client
	tracker *weather.Tracker
}

// NewWeatherHandler creates a new weather handler; client and tracker are
// nil when no API key is configured
func NewWeatherHandler(client *weather.Client, tracker *weather.Tracker) *WeatherHandler {
	return &WeatherHandler{client: client, tracker: tracker}
}

// Current handles GET /api/v1/weather?lat=&lon= or ?city=
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		respondError(w, errUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}

	var (
		reading *weather.Reading
		err     error
	)
	if city := r.URL.Query().Get("city"); city != "" {
		reading, err = h.client.ByCity(r.Context(), city)
	} else {
		var coords models.Coordinates
		if coords, err = queryCoordinates(r); err != nil {
			respondServiceError(w, r, err)
			return
		}
		reading, err = h.client.ByCoordinates(r.Context(), coords)
	}

	if err != nil {
		var se *weather.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			respondError(w, "location not found", http.StatusNotFound)
			return
		}
		if models.KindOf(err) != models.KindInternal {
			respondServiceError(w, r, err)
			return
		}
		log.Error().Err(err).Msg("Failed to fetch weather")
		respondError(w, "weather service unavailable", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, reading)
}

// Latest handles GET /api/v1/weather/latest
func (h *WeatherHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		respondJSON(w, http.StatusOK, []weather.ChallengeReading{})
		return
	}
	respondJSON(w, http.StatusOK, h.tracker.Latest())
}

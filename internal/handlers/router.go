package handlers

import (
	"net/http"

	"ecoproof-backend/internal/middleware"
	"ecoproof-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles every HTTP handler of the API
type Handlers struct {
	Users       *UserHandler
	Submissions *SubmissionHandler
	Votes       *VoteHandler
	Challenges  *ChallengeHandler
	Evidence    *EvidenceHandler
	Weather     *WeatherHandler
	WebSocket   *WebSocketHandler
}

// NewRouter wires the API routes
func NewRouter(h Handlers, tokens *services.TokenService, users *services.UserDirectory) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", h.Users.UpsertUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(tokens))

			r.Get("/users", h.Users.ListUsers)
			r.Put("/users/me/wallet", h.Users.SetWallet)
			r.Put("/users/me/device", h.Users.SetDevice)
			r.Get("/users/{id}", h.Users.GetUser)
			r.Get("/users/{id}/balance", h.Users.GetBalance)
			r.Put("/users/{id}/role", h.Users.SetRole)
			r.Get("/users/{id}/submissions", h.Submissions.ByUser)
			r.Get("/users/{id}/submissions/summary", h.Submissions.UserSummary)
			r.Get("/users/{id}/submissions/locations", h.Submissions.UserLocations)
			r.Get("/users/{id}/submissions/rewarded", h.Submissions.UserRewarded)
			r.Get("/users/{id}/votes", h.Votes.ByUser)

			r.Post("/submissions", h.Submissions.Create)
			r.Get("/submissions", h.Submissions.List)
			r.Get("/submissions/expirations", h.Submissions.Expirations)
			r.Get("/submissions/city/{city}", h.Submissions.ByCity)
			r.Get("/submissions/{id}", h.Submissions.Get)
			r.Get("/submissions/{id}/status", h.Submissions.Status)
			r.Get("/submissions/{id}/expiration", h.Submissions.Expiration)
			r.Post("/submissions/{id}/finalize", h.Submissions.Finalize)
			r.Post("/submissions/{id}/reward", h.Submissions.Reward)

			r.Post("/submissions/{id}/votes", h.Votes.Cast)
			r.Put("/submissions/{id}/votes", h.Votes.Update)
			r.Delete("/submissions/{id}/votes", h.Votes.Delete)
			r.Get("/submissions/{id}/votes/summary", h.Votes.Summary)
			r.Get("/leaderboard", h.Votes.Leaderboard)

			r.Get("/challenges", h.Challenges.List)
			r.Get("/challenges/active", h.Challenges.Active)
			r.Get("/challenges/nearby", h.Challenges.Nearby)
			r.Get("/challenges/expiring", h.Challenges.Expiring)
			r.Get("/challenges/{id}", h.Challenges.Get)
			r.Get("/challenges/{id}/submissions", h.Submissions.ByChallenge)

			r.Post("/evidence/upload", h.Evidence.Upload)
			r.Get("/weather", h.Weather.Current)
			r.Get("/weather/latest", h.Weather.Latest)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(users))
				r.Post("/challenges", h.Challenges.Create)
				r.Post("/submissions/{id}/mark-rewarded", h.Submissions.MarkRewarded)
			})
		})
	})

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

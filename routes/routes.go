package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"

	"github.com/Dosada05/pong-tournament/handlers"
	"github.com/Dosada05/pong-tournament/middleware"
	"github.com/Dosada05/pong-tournament/services"
)

func SetupRoutes(
	router chi.Router,
	identities services.IdentityResolver,
	allowedOrigins []string,
	healthHandler *handlers.HealthHandler,
	tournamentHandler *handlers.TournamentHandler,
	statsHandler *handlers.StatsHandler,
	webSocketHandler *handlers.WebSocketHandler,
	logger *slog.Logger,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(identities, logger)

	router.Get("/healthz", healthHandler.Healthz)

	// Токен проверяется внутри обработчика: браузер передаёт его через query
	router.Get("/ws", webSocketHandler.ServeWs)

	router.Get("/users/{userID}/stats", statsHandler.UserStatsHandler)

	router.Route("/tournaments", func(r chi.Router) {
		// Публичные маршруты для просмотра турниров
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
		r.Get("/{tournamentID}/results", statsHandler.TournamentResultsHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/", tournamentHandler.CreateHandler)
			r.Post("/{tournamentID}/join", tournamentHandler.JoinHandler)
			r.Post("/{tournamentID}/start", tournamentHandler.StartHandler)
			r.Post("/{tournamentID}/forfeit", tournamentHandler.ForfeitHandler)
		})
	})
}

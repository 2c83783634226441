package app

import (
	"net/http"

	"feedback-bot/internal/common/logging"
	"feedback-bot/internal/handlers"
	"feedback-bot/internal/middleware"
	"feedback-bot/internal/ratelimit"

	"github.com/gorilla/mux"
)

// Router builds the HTTP routes for the application
func (app *App) Router() *mux.Router {
	checks := []handlers.HealthCheck{{Name: "storage", Check: app.Store.Ping}}
	if app.RedisClient != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: app.RedisClient.Health})
	}
	h := handlers.New(app.Aggregator, app.Client, logging.GetGlobalLogger(), checks...)
	if app.Authenticator == nil {
		hosts := app.Config.AllowedServiceHosts()
		h.AllowServiceHosts(hosts...)
		app.Logger.Warn("Inbound token validation disabled, restricting service urls",
			logging.Strings("hosts", hosts))
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logging.GetGlobalLogger()))

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	var messages http.Handler = http.HandlerFunc(h.HandleMessages)
	if app.Authenticator != nil {
		messages = app.Authenticator.Middleware(messages)
	}
	if app.Limiter != nil {
		messages = ratelimit.HTTPMiddleware(app.Limiter, ratelimit.KeyFunc(app.Config.TrustProxy), logging.GetGlobalLogger())(messages)
	}
	router.Handle("/api/messages", messages).Methods(http.MethodPost)

	return router
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/turingroom/go/internal/game/api"
	"github.com/mcdev12/turingroom/go/internal/game/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{getEnv("CORS_ORIGIN", "*")},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{api.ReasonHeader},
	})

	registerRoutes(mux, services)
	setupHealthCheck(mux, services)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, services *Services) {
	profiles := services.Profiles
	roomService := api.NewService(services.Registry, api.Options{
		Profiles:  func() []string { return profiles },
		PublicURL: getEnv("PUBLIC_URL", ""),
	})
	roomService.RegisterRoutes(mux)
	gateway.NewWebSocketHandler(services.Connections, services.Hub).RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]any{
			"service":     "turingroom",
			"rooms":       services.Registry.Len(),
			"connections": services.Connections.Count(),
			"mirror":      services.Mirror != nil,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}

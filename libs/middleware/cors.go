package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns the cors handler for the public payment endpoints
func CORS(allowedOrigins []string, debug bool) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: false,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		MaxAge:           300,
		Debug:            debug,
	})
}

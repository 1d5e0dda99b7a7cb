package middleware

import (
	"github.com/go-chi/cors"
)

// CORS returns cors.Options for the ops server. Without configured origins
// only same-origin callers are allowed; a "*" origin disables credentials.
func CORS(allowedOrigins []string) cors.Options {
	allowCreds := len(allowedOrigins) > 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCreds,
		MaxAge:           600,
	}
}

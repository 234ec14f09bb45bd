// Package auth authenticates admin requests with an X-API-Key header, from
// either a static configured key or a postgres user table.
package auth

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/http"

	"github.com/paygate-labs/x402-gateway-go/utils"
)

// openDB opens the key database. This function can be overridden in tests.
var openDB = func(databaseURL string) (*sql.DB, error) {
	return sql.Open("postgres", databaseURL)
}

// Authenticator validates admin API keys. With neither a static key nor a
// database configured, admin routes are open (development mode).
type Authenticator struct {
	staticKey   string
	databaseURL string
}

// New creates an authenticator. Exactly one of staticKey and databaseURL
// may be set.
func New(staticKey, databaseURL string) (*Authenticator, error) {
	if staticKey != "" && databaseURL != "" {
		return nil, errors.New("both static API key and database URL are set")
	}
	return &Authenticator{staticKey: staticKey, databaseURL: databaseURL}, nil
}

// Authenticate authenticates the request.
func (a *Authenticator) Authenticate(r *http.Request) error {

	// Get the API key from the request header
	providedKey := r.Header.Get("X-API-Key")

	// Check the provided key against the static key
	if a.staticKey != "" {
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(a.staticKey)) != 1 {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}
	}

	// Check the provided key against the database
	if a.databaseURL != "" {

		// Check if the provided key is empty
		if providedKey == "" {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}

		// Connect to the database
		db, err := openDB(a.databaseURL)
		if err != nil {
			return utils.NewStatusError(
				errors.New("failed to connect to database"),
				http.StatusInternalServerError,
			)
		}
		defer db.Close()

		// Check the API key exists in the database
		var apiKey string
		err = db.QueryRow(
			"SELECT api_key FROM users WHERE api_key = $1",
			providedKey,
		).Scan(&apiKey)

		// Check if the query returned a no rows error
		if err == sql.ErrNoRows {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}

		// Check if the query returned a different error
		if err != nil {
			return utils.NewStatusError(
				errors.New("failed to get key from database"),
				http.StatusInternalServerError,
			)
		}
	}

	return nil
}

// Middleware wraps a handler with admin authentication.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r); err != nil {
			var se utils.StatusError
			if errors.As(err, &se) {
				http.Error(w, err.Error(), se.Status())
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

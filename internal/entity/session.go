package entity

import "time"

// SessionTokens are the CSRF token and cookies a site requires on API calls.
type SessionTokens struct {
	CSRFToken string            `json:"csrf_token"`
	Cookies   map[string]string `json:"cookies"`
	FetchedAt time.Time         `json:"fetched_at"`
}

package entity

import "time"

// ScopeState is a read model of what is persisted for one scope.
type ScopeState struct {
	SearchTitle string     `json:"search_title"`
	WebsiteType string     `json:"website_type"`
	Mode        string     `json:"mode"`
	Marker      string     `json:"marker,omitempty"`
	KnownCount  int        `json:"known_count"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

package response

import "github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type ProxyStatsResponse struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Evicted int `json:"evicted"`
}

type ImportProxiesResponse struct {
	Added    int `json:"added"`
	Rejected int `json:"rejected"`
}

// SourcesResponse lists the persisted state of every configured scope.
type SourcesResponse struct {
	Sources []entity.ScopeState `json:"sources"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

package request

// ImportProxiesRequest carries a proxy list in the replenishment text format.
type ImportProxiesRequest struct {
	Proxies string `json:"proxies"`
}

package sites

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

// Website types understood by the registry.
const (
	TypeAISEquip      = "aisequip"
	TypeMonroeTractor = "monroetractor"
	TypeMachineFinder = "machinefinder"
	TypeCraigslist    = "craigslist"
	TypeMascus        = "mascus"
)

var modes = map[string]entity.DetectionMode{
	TypeAISEquip:      entity.ModeSnapshot,
	TypeMonroeTractor: entity.ModeSnapshot,
	TypeMachineFinder: entity.ModeSnapshot,
	TypeCraigslist:    entity.ModeMarker,
	TypeMascus:        entity.ModeMarker,
}

// ModeOf returns the fixed detection mode of a website type.
func ModeOf(websiteType string) (entity.DetectionMode, bool) {
	m, ok := modes[websiteType]
	return m, ok
}

// KnownTypes lists every supported website type, sorted.
func KnownTypes() []string {
	types := make([]string, 0, len(modes))
	for t := range modes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Deps are the transports shared by all adapters.
type Deps struct {
	Doer      httpfetch.Doer
	Renderer  chromedp_crawler.Renderer
	Tokens    repository.TokenCache
	PageDelay time.Duration
	Logger    *zap.Logger
}

// Registry maps website types to their adapters.
type Registry struct {
	adapters map[string]any
}

// NewRegistry builds one adapter per website type.
func NewRegistry(deps Deps) *Registry {
	return &Registry{adapters: map[string]any{
		TypeAISEquip:      NewAISEquipAdapter(deps.Doer, deps.PageDelay, deps.Logger),
		TypeMonroeTractor: NewMonroeAdapter(deps.Renderer, deps.Logger),
		TypeMachineFinder: NewMachineFinderAdapter(deps.Doer, deps.Renderer, deps.Tokens, deps.Logger),
		TypeCraigslist:    NewCraigslistAdapter(deps.Renderer, deps.Logger),
		TypeMascus:        NewMascusAdapter(deps.Renderer, deps.Logger),
	}}
}

// Lookup implements repository.AdapterRegistry.
func (r *Registry) Lookup(websiteType string) (any, entity.DetectionMode, error) {
	adapter, ok := r.adapters[websiteType]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", repository.ErrUnknownWebsiteType, websiteType)
	}
	return adapter, modes[websiteType], nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/metrics"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

// Watcher defines the interface for the watch loop.
type Watcher interface {
	// Run executes cycles until ctx is done or another process holds the runner lock.
	Run(ctx context.Context) error
	// RunOnce executes a single cycle over every enabled source.
	RunOnce(ctx context.Context) error
	// RunSource runs detection for one source.
	RunSource(ctx context.Context, src entity.Source) error
	// ScopeStates reports what is persisted for every configured source.
	ScopeStates(ctx context.Context) ([]entity.ScopeState, error)
}

// WatcherConfig tunes the watch loop.
type WatcherConfig struct {
	Sources             []entity.Source
	LoopInterval        time.Duration
	DelayBetweenSources time.Duration
	// MaxPurgeRatio skips a purge larger than this share of the known ids; 0 disables the guard.
	MaxPurgeRatio float64
	// SuppressFirstCycle withholds every notification during the first cycle after start.
	SuppressFirstCycle bool
	// LockOwner and LockTTL are used to refresh the runner lock when one is set.
	LockOwner string
	LockTTL   time.Duration
}

// WatcherDeps are the collaborators of the watch loop. Pool and Lock are optional.
type WatcherDeps struct {
	Registry repository.AdapterRegistry
	Known    repository.KnownListingRepository
	Markers  repository.MarkerRepository
	Notifier repository.Notifier
	Pool     *ProxyPool
	Lock     repository.RunnerLock
}

type watcherUseCase struct {
	deps   WatcherDeps
	cfg    WatcherConfig
	logger *zap.Logger
	cycles int
}

// NewWatcher creates a new instance of the watcher use case.
func NewWatcher(deps WatcherDeps, cfg WatcherConfig, logger *zap.Logger) Watcher {
	return &watcherUseCase{deps: deps, cfg: cfg, logger: logger}
}

func (w *watcherUseCase) Run(ctx context.Context) error {
	w.logger.Info("watcher started",
		zap.Int("sources", len(w.enabledSources())),
		zap.Duration("loop_interval", w.cfg.LoopInterval),
	)
	for {
		if err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("watcher stopping")
				return nil
			}
			if errors.Is(err, repository.ErrLockHeld) {
				return err
			}
			// The lease is still ours or can be taken back next cycle.
			w.logger.Error("cycle skipped", zap.Error(err), zap.Duration("retry_in", w.cfg.LoopInterval))
			w.alert(ctx, fmt.Sprintf("Watcher cycle skipped: %v", err))
		} else {
			w.logger.Info("cycle complete, sleeping", zap.Int("cycle", w.cycles), zap.Duration("interval", w.cfg.LoopInterval))
		}
		if err := utils.Sleep(ctx, w.cfg.LoopInterval); err != nil {
			w.logger.Info("watcher stopping")
			return nil
		}
	}
}

func (w *watcherUseCase) RunOnce(ctx context.Context) error {
	sources := w.enabledSources()
	w.logger.Info("starting cycle", zap.Int("cycle", w.cycles+1), zap.Int("sources", len(sources)))

	if err := w.refreshLock(ctx); err != nil {
		return err
	}
	if w.deps.Pool != nil && usesProxies(sources) {
		if _, err := w.deps.Pool.RunHousekeeping(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("proxy housekeeping failed", zap.Error(err))
		}
	}

	for i, src := range sources {
		if i > 0 {
			if err := utils.Sleep(ctx, w.cfg.DelayBetweenSources); err != nil {
				return err
			}
			if err := w.refreshLock(ctx); err != nil {
				return err
			}
		}
		if err := w.RunSource(ctx, src); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A failed scope never stops the cycle.
			w.logger.Error("source failed", zap.String("source", src.SearchTitle), zap.Error(err))
		}
	}

	w.cycles++
	metrics.CyclesTotal.Inc()
	return nil
}

func (w *watcherUseCase) RunSource(ctx context.Context, src entity.Source) (err error) {
	start := time.Now()
	mode := entity.DetectionMode(0)
	result := "success"

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			err = fmt.Errorf("panic while processing %s: %v", src.SearchTitle, r)
			w.logger.Error("recovered from panic", zap.String("source", src.SearchTitle), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			w.alert(ctx, fmt.Sprintf("Error processing %s: %v", src.SearchTitle, r))
		}
		metrics.ScopeRunsTotal.WithLabelValues(src.SearchTitle, mode.String(), result).Inc()
		metrics.ScopeDuration.WithLabelValues(src.SearchTitle).Observe(time.Since(start).Seconds())
	}()

	adapter, mode, err := w.deps.Registry.Lookup(src.WebsiteType)
	if err != nil {
		result = "skipped"
		return fmt.Errorf("no adapter for %s: %w", src.SearchTitle, err)
	}

	notify := !(w.cfg.SuppressFirstCycle && w.cycles == 0)
	log := w.logger.With(zap.String("source", src.SearchTitle), zap.String("website_type", src.WebsiteType), zap.String("mode", mode.String()))
	log.Info("processing source", zap.String("url", src.URL))

	var found int
	switch a := adapter.(type) {
	case repository.SnapshotAdapter:
		found, result, err = w.runSnapshot(ctx, src, a, notify, log)
	case repository.MarkerAdapter:
		found, result, err = w.runMarker(ctx, src, a, notify, log)
	default:
		result = "skipped"
		return fmt.Errorf("adapter for %s supports no detection mode", src.WebsiteType)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNoProxyAvailable) {
			result = "skipped"
		}
		return err
	}

	log.Info("source processed", zap.Int("new", found), zap.Duration("duration", time.Since(start)))
	return nil
}

func (w *watcherUseCase) runSnapshot(ctx context.Context, src entity.Source, a repository.SnapshotAdapter, notify bool, log *zap.Logger) (int, string, error) {
	scope := src.Scope()

	known, err := w.deps.Known.KnownIDs(ctx, scope)
	if err != nil {
		return 0, "store_failed", fmt.Errorf("failed to load known ids for %s: %w", scope, err)
	}

	snap, err := a.FetchSnapshot(ctx, src)
	if err != nil {
		return 0, "fetch_failed", fmt.Errorf("failed to fetch %s: %w", scope, err)
	}
	log.Info("snapshot fetched", zap.Int("items", len(snap.Listings)), zap.Int("pages", snap.Pages), zap.Int("known", len(known)))

	if len(snap.Listings) == 0 {
		w.zeroItems(ctx, src, log)
	}

	diff := DetectSnapshot(snap.Listings, known)
	purged := diff.Purged
	if w.purgeBlocked(len(purged), len(known)) {
		log.Warn("purge skipped, too many known listings vanished", zap.Int("purge", len(purged)), zap.Int("known", len(known)), zap.Float64("max_ratio", w.cfg.MaxPurgeRatio))
		w.alert(ctx, fmt.Sprintf("%s: %d of %d known listings disappeared in one fetch; purge skipped", scope, len(purged), len(known)))
		purged = nil
	}

	if err := w.deps.Known.ApplySnapshot(ctx, scope, src.WebsiteType, diff.Added(), purged); err != nil {
		return 0, "store_failed", fmt.Errorf("failed to persist snapshot for %s: %w", scope, err)
	}
	metrics.NewListingsTotal.WithLabelValues(scope).Add(float64(len(diff.New)))
	metrics.PurgedListingsTotal.WithLabelValues(scope).Add(float64(len(purged)))
	log.Info("snapshot applied", zap.Int("new", len(diff.New)), zap.Int("purged", len(purged)))

	// A scope without known ids is seeded silently.
	w.notify(ctx, src, diff.New, notify && len(known) > 0, log)
	return len(diff.New), "success", nil
}

func (w *watcherUseCase) runMarker(ctx context.Context, src entity.Source, a repository.MarkerAdapter, notify bool, log *zap.Logger) (int, string, error) {
	scope := src.Scope()

	previous, hasMarker, err := w.deps.Markers.GetMarker(ctx, scope)
	if err != nil {
		return 0, "store_failed", fmt.Errorf("failed to load marker for %s: %w", scope, err)
	}

	page, err := a.FetchPage(ctx, src)
	if err != nil {
		return 0, "fetch_failed", fmt.Errorf("failed to fetch %s: %w", scope, err)
	}

	diff := DetectMarker(page, previous, src.MaxItems)
	log.Info("feed fetched", zap.Int("items", len(page)), zap.String("marker", previous), zap.Int("new", len(diff.New)))

	if len(diff.New) == 0 && !hasMarker {
		w.zeroItems(ctx, src, log)
	}

	if diff.NextMarker != "" {
		if err := w.deps.Markers.SaveMarker(ctx, scope, diff.NextMarker); err != nil {
			return 0, "store_failed", fmt.Errorf("failed to save marker for %s: %w", scope, err)
		}
	}
	metrics.NewListingsTotal.WithLabelValues(scope).Add(float64(len(diff.New)))

	w.notify(ctx, src, diff.New, notify && hasMarker, log)
	return len(diff.New), "success", nil
}

func (w *watcherUseCase) purgeBlocked(purge, known int) bool {
	if w.cfg.MaxPurgeRatio <= 0 || known == 0 || purge == 0 {
		return false
	}
	return float64(purge)/float64(known) > w.cfg.MaxPurgeRatio
}

func (w *watcherUseCase) notify(ctx context.Context, src entity.Source, listings []entity.Listing, allowed bool, log *zap.Logger) {
	if len(listings) == 0 {
		return
	}
	if !allowed {
		log.Info("notifications suppressed", zap.Int("new", len(listings)))
		return
	}

	batch := make([]entity.Notification, 0, len(listings))
	for _, l := range listings {
		batch = append(batch, l.Notification())
	}
	if err := w.deps.Notifier.NotifyListings(ctx, src.SearchTitle, src.WebsiteType, batch); err != nil {
		log.Error("failed to send notifications", zap.Int("new", len(batch)), zap.Error(err))
	}
}

func (w *watcherUseCase) zeroItems(ctx context.Context, src entity.Source, log *zap.Logger) {
	log.Warn("source returned zero items")
	if err := w.deps.Notifier.SendZeroItemsAlert(ctx, src.SearchTitle, src.URL, src.WebsiteType); err != nil {
		log.Error("failed to send zero items alert", zap.Error(err))
	}
}

func (w *watcherUseCase) alert(ctx context.Context, message string) {
	if err := w.deps.Notifier.SendAlert(ctx, message); err != nil {
		w.logger.Error("failed to send alert", zap.Error(err))
	}
}

func (w *watcherUseCase) refreshLock(ctx context.Context) error {
	if w.deps.Lock == nil {
		return nil
	}
	if err := w.deps.Lock.Refresh(ctx, w.cfg.LockOwner, w.cfg.LockTTL); err != nil {
		return fmt.Errorf("failed to refresh runner lock: %w", err)
	}
	return nil
}

func (w *watcherUseCase) ScopeStates(ctx context.Context) ([]entity.ScopeState, error) {
	states := make([]entity.ScopeState, 0, len(w.cfg.Sources))
	for _, src := range w.cfg.Sources {
		st := entity.ScopeState{SearchTitle: src.SearchTitle, WebsiteType: src.WebsiteType}
		_, mode, err := w.deps.Registry.Lookup(src.WebsiteType)
		if err != nil {
			st.Mode = "unknown"
			states = append(states, st)
			continue
		}
		st.Mode = mode.String()

		switch mode {
		case entity.ModeMarker:
			marker, _, err := w.deps.Markers.GetMarker(ctx, src.Scope())
			if err != nil {
				return nil, fmt.Errorf("failed to load marker for %s: %w", src.Scope(), err)
			}
			st.Marker = marker
			if st.UpdatedAt, err = w.deps.Markers.MarkerUpdatedAt(ctx, src.Scope()); err != nil {
				return nil, fmt.Errorf("failed to load marker time for %s: %w", src.Scope(), err)
			}
		case entity.ModeSnapshot:
			if st.KnownCount, err = w.deps.Known.CountKnown(ctx, src.Scope()); err != nil {
				return nil, fmt.Errorf("failed to count known ids for %s: %w", src.Scope(), err)
			}
		}
		states = append(states, st)
	}
	return states, nil
}

func (w *watcherUseCase) enabledSources() []entity.Source {
	var out []entity.Source
	for _, s := range w.cfg.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func usesProxies(sources []entity.Source) bool {
	for _, s := range sources {
		if s.UseProxy {
			return true
		}
	}
	return false
}

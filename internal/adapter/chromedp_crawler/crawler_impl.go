package chromedp_crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// ChromedpRenderer renders pages with a shared headless Chrome. Proxied
// renders get their own browser since the proxy is a launch flag.
type ChromedpRenderer struct {
	opts        []chromedp.ExecAllocatorOption
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *zap.Logger
}

// NewChromedpRenderer creates a renderer. pageLoadTimeout bounds a whole visit.
func NewChromedpRenderer(pageLoadTimeout time.Duration, userAgent string, logger *zap.Logger) *ChromedpRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(1920, 1080),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpRenderer{
		opts:        opts,
		allocCtx:    allocCtx,
		allocCancel: cancel,
		timeout:     pageLoadTimeout,
		logger:      logger,
	}
}

// Close shuts the shared browser down.
func (c *ChromedpRenderer) Close() {
	c.allocCancel()
}

func (c *ChromedpRenderer) allocator(proxy *entity.Proxy) (context.Context, context.CancelFunc) {
	if proxy == nil {
		return c.allocCtx, func() {}
	}
	server := fmt.Sprintf("%s://%s", proxy.Protocol, proxy.Address())
	opts := append(c.opts[:len(c.opts):len(c.opts)], chromedp.ProxyServer(server))
	return chromedp.NewExecAllocator(context.Background(), opts...)
}

// Render visits req.URL and returns the DOM once the page settled.
func (c *ChromedpRenderer) Render(ctx context.Context, req *RenderRequest) (*RenderResult, error) {
	allocCtx, releaseAlloc := c.allocator(req.Proxy)
	defer releaseAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(c.logger.Sugar().Debugf))
	defer cancel()

	// The browser outlives the caller's context, so cancellation is bridged.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, c.timeout)
	defer cancelTimeout()

	if req.Proxy != nil && req.Proxy.HasCredentials() {
		c.handleProxyAuth(taskCtx, req.Proxy)
		if err := chromedp.Run(taskCtx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
			return nil, fmt.Errorf("failed to enable proxy auth: %w", err)
		}
	}

	startTime := time.Now()
	if err := chromedp.Run(taskCtx, chromedp.Navigate(req.URL)); err != nil {
		return nil, c.renderErr(ctx, req.URL, err)
	}

	c.waitFor(taskCtx, req)

	if req.Scroll != nil {
		if err := c.scroll(taskCtx, req.Scroll); err != nil {
			return nil, c.renderErr(ctx, req.URL, err)
		}
	}

	result := &RenderResult{}
	actions := []chromedp.Action{chromedp.OuterHTML("html", &result.HTML, chromedp.ByQuery)}
	if req.CaptureCookies {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			result.Cookies = make(map[string]string, len(cookies))
			for _, ck := range cookies {
				result.Cookies[ck.Name] = ck.Value
			}
			return nil
		}))
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, c.renderErr(ctx, req.URL, err)
	}

	c.logger.Debug("page rendered",
		zap.String("url", req.URL),
		zap.Int("html_bytes", len(result.HTML)),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return result, nil
}

func (c *ChromedpRenderer) renderErr(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("failed to render %s: %w", url, err)
}

func (c *ChromedpRenderer) waitFor(ctx context.Context, req *RenderRequest) {
	wait := req.WaitTimeout
	if wait <= 0 {
		wait = 20 * time.Second
	}
	found := len(req.WaitSelectors) == 0
	for _, sel := range req.WaitSelectors {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			found = true
			break
		}
		if ctx.Err() != nil {
			return
		}
	}
	if !found {
		c.logger.Warn("timed out waiting for results", zap.String("url", req.URL), zap.Strings("selectors", req.WaitSelectors))
	}
	if req.Settle > 0 {
		_ = chromedp.Run(ctx, chromedp.Sleep(req.Settle))
	}
}

func (c *ChromedpRenderer) scroll(ctx context.Context, spec *ScrollSpec) error {
	expected := 0
	if spec.CountSelector != "" {
		var raw string
		if err := chromedp.Run(ctx, chromedp.Evaluate(attrScript(spec.CountSelector, spec.CountAttr), &raw)); err != nil {
			return err
		}
		expected, _ = strconv.Atoi(strings.TrimSpace(raw))
	}

	var loaded int
	if err := chromedp.Run(ctx, chromedp.Evaluate(countScript(spec.ItemSelector), &loaded)); err != nil {
		return err
	}

	attempts, stalls := 0, 0
	for (expected == 0 || loaded < expected) && attempts < spec.MaxAttempts {
		actions := []chromedp.Action{}
		for i := 0; i < 3; i++ {
			actions = append(actions, chromedp.Evaluate(scrollStepScript, nil), chromedp.Sleep(spec.Pause/6))
		}
		actions = append(actions, chromedp.Evaluate(scrollBottomScript, nil), chromedp.Sleep(spec.Pause))

		var now int
		actions = append(actions, chromedp.Evaluate(countScript(spec.ItemSelector), &now))
		if err := chromedp.Run(ctx, actions...); err != nil {
			return err
		}
		attempts++

		if now == loaded {
			stalls++
			if stalls >= spec.StallLimit {
				c.logger.Warn("no new items while scrolling, stopping", zap.Int("loaded", now), zap.Int("expected", expected))
				break
			}
		} else {
			stalls = 0
		}
		loaded = now
	}

	c.logger.Info("finished scrolling", zap.Int("attempts", attempts), zap.Int("loaded", loaded), zap.Int("expected", expected))
	return nil
}

func (c *ChromedpRenderer) handleProxyAuth(ctx context.Context, proxy *entity.Proxy) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				execCtx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target)
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}
				if err := fetch.ContinueWithAuth(e.RequestID, resp).Do(execCtx); err != nil && !errors.Is(err, context.Canceled) {
					c.logger.Debug("proxy auth failed", zap.Error(err))
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				execCtx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target)
				_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
			}()
		}
	})
}

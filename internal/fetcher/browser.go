package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/internal/session"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const defaultBrowserTimeout = 45 * time.Second

// Browser renders pages in headless Chrome. It carries the same contract as
// Network but executes JavaScript and keeps a cookie jar across pages. The
// jar is restored from the session store at construction and saved on Close.
type Browser struct {
	providerID string
	headers    map[string]string
	throttle   *Throttle
	retry      RetryPolicy
	timeout    time.Duration
	wait       time.Duration
	sessions   *session.Store
	log        logger.Logger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

// savedCookie is the persisted form of a browser cookie.
type savedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
}

// NewBrowser launches a browser for the descriptor and restores its session.
func NewBrowser(ctx context.Context, p providers.Provider, opts Options) (*Browser, error) {
	log := logger.Ensure(opts.Log)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: start browser for %q: %v", domain.ErrFatalConfig, p.ID, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}

	b := &Browser{
		providerID:    p.ID,
		headers:       providers.Headers(p),
		throttle:      NewThrottle(p.Concurrency, p.RateLimitDelay()),
		retry:         opts.Retry,
		timeout:       timeout,
		wait:          opts.BrowserWait,
		sessions:      opts.Sessions,
		log:           log,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}

	if err := b.restoreSession(); err != nil {
		log.WarnObj("browser session restore failed", "session_restore_error", map[string]any{
			"provider_id": p.ID,
			"error":       err.Error(),
		})
	}
	return b, nil
}

// Kind returns the client kind.
func (b *Browser) Kind() string { return providers.ClientBrowser }

// Fetch renders url and returns the outer HTML of the document.
func (b *Browser) Fetch(ctx context.Context, url string) ([]byte, error) {
	return b.retry.Do(ctx, func(ctx context.Context) ([]byte, *Error) {
		return b.once(ctx, url)
	})
}

func (b *Browser) once(ctx context.Context, url string) ([]byte, *Error) {
	release, err := b.throttle.Acquire(ctx)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer release()

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	runCtx, cancelRun := context.WithTimeout(tabCtx, b.timeout)
	defer cancelRun()
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	b.log.DebugObj("rendering page", "browser_fetch_start", map[string]any{
		"provider_id": b.providerID,
		"url":         url,
	})

	if len(b.headers) > 0 {
		h := make(network.Headers, len(b.headers))
		for k, v := range b.headers {
			h[k] = v
		}
		if err := chromedp.Run(runCtx, network.Enable(), network.SetExtraHTTPHeaders(h)); err != nil {
			return nil, b.classifyRun(ctx, url, err)
		}
	}

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, b.classifyRun(ctx, url, err)
	}
	if resp != nil {
		if status := int(resp.Status); status >= http.StatusBadRequest {
			return nil, &Error{Kind: KindHTTP, Status: status, URL: url}
		}
	}

	var html string
	actions := []chromedp.Action{chromedp.WaitReady("body", chromedp.ByQuery)}
	if b.wait > 0 {
		actions = append(actions, chromedp.Sleep(b.wait))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, b.classifyRun(ctx, url, err)
	}

	body := []byte(html)
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return body, nil
}

func (b *Browser) classifyRun(ctx context.Context, url string, err error) *Error {
	if ctx.Err() == nil && errors.Is(err, context.Canceled) {
		// The run context was canceled by its own timeout.
		return &Error{Kind: KindTimeout, URL: url, Err: err}
	}
	ferr := classify(ctx, url, err)
	b.log.DebugObj("browser fetch failed", "browser_fetch_error", map[string]any{
		"provider_id": b.providerID,
		"url":         url,
		"kind":        string(ferr.Kind),
		"error":       err.Error(),
	})
	return ferr
}

// Close saves the session and shuts the browser down.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.saveSession()
		b.cancelBrowser()
		b.cancelAlloc()
	})
	return b.closeErr
}

func (b *Browser) restoreSession() error {
	if b.sessions == nil {
		return nil
	}
	blob, err := b.sessions.Load(b.providerID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var saved []savedCookie
	if err := json.Unmarshal(blob, &saved); err != nil {
		return fmt.Errorf("decode session blob: %w", err)
	}
	if len(saved) == 0 {
		return nil
	}

	params := cookieParams(saved)

	if err := chromedp.Run(b.browserCtx, storage.SetCookies(params)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	b.log.DebugObj("browser session restored", "session_restore", map[string]any{
		"provider_id": b.providerID,
		"cookies":     len(params),
	})
	return nil
}

func (b *Browser) saveSession() error {
	if b.sessions == nil {
		return nil
	}

	var cookies []*network.Cookie
	if err := chromedp.Run(b.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	blob, err := json.Marshal(savedCookies(cookies))
	if err != nil {
		return fmt.Errorf("encode session blob: %w", err)
	}
	if err := b.sessions.Save(b.providerID, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// cookieParams converts persisted cookies into the form SetCookies accepts.
// A cookie without a positive expiry is restored as a session cookie.
func cookieParams(saved []savedCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(saved))
	for _, c := range saved {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		params = append(params, param)
	}
	return params
}

// savedCookies converts the browser's cookie jar into its persisted form.
func savedCookies(cookies []*network.Cookie) []savedCookie {
	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		saved = append(saved, savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
			Expires:  c.Expires,
		})
	}
	return saved
}

// Package browser owns the live connection to one backend browser session:
// it executes discrete actions, extracts page state at three fidelities and
// captures click events for replay. It never parses HTML itself; everything
// goes through the automation engine.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/hallwayapps/browsergate/internal/provision"
	"github.com/hallwayapps/browsergate/pkg/models"
)

const (
	stateTimeout   = 15 * time.Second
	clickBufferCap = 100
)

// LaunchOptions configures session establishment. Endpoint is set when
// reattaching to a backend session recovered from the directory.
type LaunchOptions struct {
	Cookies    []models.Cookie
	DefaultURL string
	Headless   bool
	Endpoint   *provision.Endpoint
}

// Controller wraps exactly one live browser connection. All backend commands
// for the session run one at a time; the underlying CDP connection is not
// safe for interleaved commands.
type Controller struct {
	tabID string
	prov  provision.Provisioner
	log   *zap.Logger

	mu       sync.Mutex
	launched bool
	endpoint *provision.Endpoint
	browser  *rod.Browser
	page     *rod.Page
	clicks   *clickRing
}

// NewController creates an unlaunched controller bound to one tab.
func NewController(tabID string, prov provision.Provisioner, log *zap.Logger) *Controller {
	return &Controller{
		tabID:  tabID,
		prov:   prov,
		log:    log.With(zap.String("tab_id", tabID)),
		clicks: newClickRing(clickBufferCap),
	}
}

// Launch establishes the backend session. It is idempotent: a second call
// returns the existing endpoint without relaunching.
func (c *Controller) Launch(ctx context.Context, opts LaunchOptions) (*provision.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.launched {
		return c.endpoint, nil
	}

	endpoint := opts.Endpoint
	created := false
	if endpoint == nil {
		ep, err := c.prov.Create(ctx, provision.CreateOptions{Headless: opts.Headless})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLaunchFailure, err)
		}
		endpoint = ep
		created = true
	}

	browser := rod.New().ControlURL(endpoint.ConnectURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if created {
			_ = c.prov.Release(ctx, endpoint.ID)
		}
		return nil, fmt.Errorf("%w: connect to backend: %v", ErrLaunchFailure, err)
	}

	page, err := c.attachPage(browser, endpoint, opts)
	if err != nil {
		_ = browser.Close()
		if created {
			_ = c.prov.Release(ctx, endpoint.ID)
		}
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailure, err)
	}

	c.browser = browser
	c.page = page
	c.endpoint = endpoint
	c.launched = true
	c.log.Info("session launched",
		zap.String("backend_session_id", endpoint.ID),
		zap.Bool("reattached", !created))
	return endpoint, nil
}

func (c *Controller) attachPage(browser *rod.Browser, endpoint *provision.Endpoint, opts LaunchOptions) (*rod.Page, error) {
	var page *rod.Page

	// When reattaching, the backend session usually still has its page open.
	if opts.Endpoint != nil {
		if pages, err := browser.Pages(); err == nil && len(pages) > 0 {
			page = pages.First()
		}
	}
	if page == nil {
		p, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		page = p
	}

	if _, err := page.EvalOnNewDocument(fmt.Sprintf("(%s)()", clickTrackerJS)); err != nil {
		return nil, fmt.Errorf("install click tracker: %w", err)
	}

	if len(opts.Cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(opts.Cookies))
		for _, ck := range opts.Cookies {
			params = append(params, &proto.NetworkCookieParam{
				Name:   ck.Name,
				Value:  ck.Value,
				Domain: ck.Domain,
				Path:   ck.Path,
			})
		}
		if err := page.SetCookies(params); err != nil {
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}

	if opts.DefaultURL != "" {
		nav := page.Timeout(35 * time.Second)
		if err := nav.Navigate(opts.DefaultURL); err != nil {
			return nil, fmt.Errorf("navigate to default url: %w", err)
		}
		_ = nav.WaitLoad()
	}
	return page, nil
}

// IsLaunched reports whether a backend connection is held. No side effects.
func (c *Controller) IsLaunched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launched
}

// BackendSessionID returns the backend's id for this session, empty before
// launch.
func (c *Controller) BackendSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return ""
	}
	return c.endpoint.ID
}

// ExecuteAction performs one discrete action against the live page. Failures
// come back classified: ErrActionTimeout on deadline, ErrSessionExpired on a
// recognized disconnect, the raw backend error otherwise.
func (c *Controller) ExecuteAction(ctx context.Context, action models.Action) (*models.ActionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.launched {
		return nil, ErrNoActiveSession
	}

	result, err := c.execute(ctx, action)
	if err != nil {
		return nil, Classify(err)
	}
	return result, nil
}

func (c *Controller) execute(ctx context.Context, action models.Action) (*models.ActionResult, error) {
	page := c.page.Context(ctx).Timeout(action.Timeout())
	result := &models.ActionResult{Type: action.Type}

	switch action.Type {
	case models.ActionNavigate:
		if err := page.Navigate(action.URL); err != nil {
			return nil, err
		}
		_ = page.WaitLoad()
		result.URL = action.URL

	case models.ActionClick:
		el, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, err
		}

	case models.ActionTypeText:
		el, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		_ = el.SelectAllText()
		if err := el.Input(action.Text); err != nil {
			return nil, err
		}

	case models.ActionHover:
		el, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.Hover(); err != nil {
			return nil, err
		}

	case models.ActionSelect:
		el, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.Select([]string{action.Value}, true, rod.SelectorTypeText); err != nil {
			return nil, err
		}

	case models.ActionDrag:
		src, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		dst, err := page.Element(action.TargetSelector)
		if err != nil {
			return nil, err
		}
		if err := src.Hover(); err != nil {
			return nil, err
		}
		if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, err
		}
		if err := dst.Hover(); err != nil {
			return nil, err
		}
		if err := page.Mouse.Up(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, err
		}

	case models.ActionUpload:
		el, err := page.Element(action.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.SetFiles([]string{action.FilePath}); err != nil {
			return nil, err
		}

	case models.ActionScroll:
		if err := page.Mouse.Scroll(float64(action.DeltaX), float64(action.DeltaY), 1); err != nil {
			return nil, err
		}

	case models.ActionScreenshot:
		data, err := page.Screenshot(action.FullPage, nil)
		if err != nil {
			return nil, err
		}
		result.Screenshot = base64.StdEncoding.EncodeToString(data)

	case models.ActionWait:
		if action.Selector != "" {
			if _, err := page.Element(action.Selector); err != nil {
				return nil, err
			}
		} else {
			select {
			case <-time.After(time.Duration(action.DurationMs) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

	case models.ActionKeyPress:
		key, err := lookupKey(action.Key)
		if err != nil {
			return nil, err
		}
		if err := page.Keyboard.Press(key); err != nil {
			return nil, err
		}

	case models.ActionTab:
		return c.executeTab(page, action)

	default:
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}

	return result, nil
}

func (c *Controller) executeTab(page *rod.Page, action models.Action) (*models.ActionResult, error) {
	result := &models.ActionResult{Type: models.ActionTab}

	switch action.TabCommand {
	case "new":
		url := action.URL
		if url == "" {
			url = "about:blank"
		}
		newPage, err := c.browser.Page(proto.TargetCreateTarget{URL: url})
		if err != nil {
			return nil, err
		}
		if _, err := newPage.EvalOnNewDocument(fmt.Sprintf("(%s)()", clickTrackerJS)); err != nil {
			return nil, err
		}
		c.page = newPage
		result.URL = url

	case "activate":
		pages, err := c.browser.Pages()
		if err != nil {
			return nil, err
		}
		if action.TabIndex < 0 || action.TabIndex >= len(pages) {
			return nil, fmt.Errorf("tab index %d out of range", action.TabIndex)
		}
		target := pages[action.TabIndex]
		if _, err := target.Activate(); err != nil {
			return nil, err
		}
		c.page = target

	case "list":
		pages, err := c.browser.Pages()
		if err != nil {
			return nil, err
		}
		for i, p := range pages {
			info, err := p.Info()
			if err != nil {
				continue
			}
			result.Tabs = append(result.Tabs, models.TabInfo{
				Index:  i,
				URL:    info.URL,
				Active: p.TargetID == c.page.TargetID,
			})
		}
	}

	return result, nil
}

// GetState reads a point-in-time page snapshot at the requested fidelity.
// Compact reads apply the empty-extraction retry protocol.
func (c *Controller) GetState(ctx context.Context, fidelity models.StateType, includeIframes bool) (*models.StateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.launched {
		return nil, ErrNoActiveSession
	}

	reader := &rodReader{page: c.page, timeout: stateTimeout}
	result := &models.StateResult{StateType: fidelity}

	switch fidelity {
	case models.StateLite:
		lite, err := reader.readLite(ctx)
		if err != nil {
			return nil, err
		}
		result.Lite = lite
	case models.StateCompact:
		compact, err := compactWithRetry(ctx, reader)
		if err != nil {
			return nil, err
		}
		result.Compact = compact
	case models.StateFull:
		full, err := reader.readFull(ctx, includeIframes)
		if err != nil {
			return nil, err
		}
		result.Full = full
	default:
		return nil, fmt.Errorf("unknown state fidelity %q", fidelity)
	}

	return result, nil
}

// GetClickEvents drains captured clicks from the page into the ring buffer
// and returns buffered events, optionally only those strictly after since
// (unix milliseconds). Ordering is insertion order.
func (c *Controller) GetClickEvents(ctx context.Context, since int64) ([]models.ClickEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.launched {
		return nil, ErrNoActiveSession
	}

	reader := &rodReader{page: c.page, timeout: stateTimeout}
	var drained []models.ClickEvent
	if err := reader.eval(ctx, drainClicksJS, &drained); err != nil {
		return nil, err
	}
	c.clicks.add(drained...)

	return c.clicks.since(since), nil
}

// LiveViewURL returns the backend's interactive debug URL, or empty when the
// backend does not support one. Lookup failures degrade to absent rather
// than erroring; live view is strictly best-effort.
func (c *Controller) LiveViewURL(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoint == nil || !c.prov.SupportsLiveView() {
		return ""
	}
	if c.endpoint.DebugURL != "" {
		return c.endpoint.DebugURL
	}

	ep, err := c.prov.Describe(ctx, c.endpoint.ID)
	if err != nil {
		c.log.Debug("live view lookup failed", zap.Error(err))
		return ""
	}
	c.endpoint.DebugURL = ep.DebugURL
	return ep.DebugURL
}

// ConnectURL returns the backend CDP endpoint for debug pass-through.
func (c *Controller) ConnectURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return ""
	}
	return c.endpoint.ConnectURL
}

// Close releases the backend connection. Errors are deliberately ignored:
// teardown must never block on a stuck or already-dead handle, and Close is
// safe to call on a controller that never launched.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.launched {
		return
	}
	c.launched = false

	if err := c.browser.Close(); err != nil {
		c.log.Debug("browser close failed", zap.Error(err))
	}
	if err := c.prov.Release(ctx, c.endpoint.ID); err != nil {
		c.log.Debug("backend release failed", zap.Error(err))
	}
	c.log.Info("session closed", zap.String("backend_session_id", c.endpoint.ID))
}

var keyMap = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"home":       input.Home,
	"end":        input.End,
}

func lookupKey(name string) (input.Key, error) {
	if key, ok := keyMap[name]; ok {
		return key, nil
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return input.Key(runes[0]), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}

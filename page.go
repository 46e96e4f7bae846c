package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Page is a handle to one page target. It holds no protocol state itself;
// every operation is a round trip through the owning Handler's single
// goroutine.
type Page struct {
	handler  *Handler
	targetID TargetID
	info     TargetInfo
}

func newPage(h *Handler, id TargetID, t *Target) *Page {
	return &Page{handler: h, targetID: id, info: t.Info}
}

// TargetID returns the browser-assigned id of the target this page wraps.
func (p *Page) TargetID() TargetID {
	return p.targetID
}

// ExecuteOption configures one Page.Execute call.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the per-call timeout configured on the Handler for
// a single Execute call.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(c *executeConfig) { c.timeout = d }
}

// Execute issues one protocol call against the page's target and decodes
// its result into result, if non-nil.
func (p *Page) Execute(ctx context.Context, method string, params interface{}, result interface{}, opts ...ExecuteOption) error {
	cfg := executeConfig{timeout: p.handler.cfg.requestTimeout}
	for _, o := range opts {
		o(&cfg)
	}

	var raw json.RawMessage
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = buf
	} else {
		raw = emptyParams
	}

	cctx := ctx
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	res, err := p.handler.execute(cctx, p.targetID, Request{Method: method, Params: raw})
	if err != nil {
		return err
	}
	if result != nil && len(res) > 0 {
		return json.Unmarshal(res, result)
	}
	return nil
}

// Goto navigates the page's main frame to rawURL. rawURL is validated
// before any protocol call is made: an obvious misuse (an empty or
// unparsable URL) fails synchronously rather than being sent to the
// browser and resolved as a navigation error later.
func (p *Page) Goto(ctx context.Context, rawURL string, timeout time.Duration) (NavigationID, error) {
	if err := validateNavigationURL(rawURL); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = p.handler.cfg.requestTimeout
	}
	return p.handler.goTo(ctx, p.targetID, rawURL, timeout)
}

// validateNavigationURL rejects requests that could never succeed as a
// navigation, mirroring the original client's synchronous cookie-url
// validation applied here to the analogous goto misuse.
func validateNavigationURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("handler: goto: empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("handler: goto: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("handler: goto: url %q has no scheme", rawURL)
	}
	return nil
}

// WaitForNavigation blocks until the next navigation on this page resolves,
// returning the url it navigated to.
func (p *Page) WaitForNavigation(ctx context.Context) (string, error) {
	return p.handler.waitForNavigation(ctx, p.targetID)
}

// Url returns the page's main frame's current url, or ErrNotFound if the
// frame tree has not resolved yet.
func (p *Page) Url(ctx context.Context) (string, error) {
	f, err := p.handler.mainFrame(ctx, p.targetID)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", ErrNotFound
	}
	return f.URL, nil
}

// MainFrame returns the page's current main frame, or ErrNotFound if the
// frame tree has not resolved yet.
func (p *Page) MainFrame(ctx context.Context) (*Frame, error) {
	f, err := p.handler.mainFrame(ctx, p.targetID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}
	return f, nil
}

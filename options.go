package handler

import (
	"log/slog"
	"time"
)

// HandlerConfig is the set of knobs a Handler is constructed with (spec
// section 6.1). The zero value is not valid; use NewHandlerConfig.
type HandlerConfig struct {
	requestTimeout     time.Duration
	viewport           Viewport
	ignoreHTTPSErrors  bool
	requestIntercept   bool
	cacheEnabled       bool
	waitForInitialPage bool

	logger *slog.Logger
}

// defaultRequestTimeout is applied per outstanding call and per init-chain
// item when no HandlerOption overrides it.
const defaultRequestTimeout = 30 * time.Second

// NewHandlerConfig returns a HandlerConfig with the teacher's historical
// defaults: a 30s per-command timeout, no viewport override, caching
// enabled, interception and initial-page waiting both off.
func NewHandlerConfig(opts ...HandlerOption) HandlerConfig {
	cfg := HandlerConfig{
		requestTimeout: defaultRequestTimeout,
		cacheEnabled:   true,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// HandlerOption configures a HandlerConfig.
type HandlerOption func(*HandlerConfig)

// WithRequestTimeout overrides the per-command and per-init-chain-item
// timeout.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(c *HandlerConfig) { c.requestTimeout = d }
}

// WithViewport configures the device metrics override applied to every
// target during its InitializingEmulation stage.
func WithViewport(v Viewport) HandlerOption {
	return func(c *HandlerConfig) { c.viewport = v }
}

// WithIgnoreHTTPSErrors has the Handler accept otherwise-invalid TLS
// certificates encountered while navigating.
func WithIgnoreHTTPSErrors(ignore bool) HandlerOption {
	return func(c *HandlerConfig) { c.ignoreHTTPSErrors = ignore }
}

// WithRequestIntercept enables the Fetch domain on every target, routing
// matching requests through NetworkManager's paused-request bookkeeping.
func WithRequestIntercept(intercept bool) HandlerOption {
	return func(c *HandlerConfig) { c.requestIntercept = intercept }
}

// WithCacheEnabled toggles the browser HTTP cache. Enabled by default.
func WithCacheEnabled(enabled bool) HandlerOption {
	return func(c *HandlerConfig) { c.cacheEnabled = enabled }
}

// WithWaitForInitialPage has Handler.Start block until the first page
// target reports Ready before returning. NewHandler itself never blocks.
func WithWaitForInitialPage(wait bool) HandlerOption {
	return func(c *HandlerConfig) { c.waitForInitialPage = wait }
}

// WithLogger overrides the structured logger used for the handler's
// ambient logging. Defaults to slog.Default().
func WithLogger(l *slog.Logger) HandlerOption {
	return func(c *HandlerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

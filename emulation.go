package handler

// Viewport describes the device metrics a target should be emulated with.
// A zero-value Viewport means "no emulation", and EmulationManager's init
// chain then has no viewport calls (it may still carry the certificate-error
// call). There is no separate touch setting: touch emulation follows Mobile.
type Viewport struct {
	Width             int64
	Height            int64
	DeviceScaleFactor float64
	Mobile            bool
}

// isZero reports whether v requests no emulation at all.
func (v Viewport) isZero() bool {
	return v == Viewport{}
}

// EmulationManager applies a target's viewport override during init (spec
// section 4.5). It is not re-entered after init: there is no operation in
// scope that changes the viewport mid-session.
type EmulationManager struct {
	viewport          Viewport
	ignoreHTTPSErrors bool
}

// NewEmulationManager captures the viewport to apply at init, and whether
// TLS certificate errors should be ignored for the target's navigations
// (HandlerConfig.IgnoreHTTPSErrors).
func NewEmulationManager(viewport Viewport, ignoreHTTPSErrors bool) *EmulationManager {
	return &EmulationManager{viewport: viewport, ignoreHTTPSErrors: ignoreHTTPSErrors}
}

// InitChainItems is the ordered set of calls that apply the configured
// viewport and certificate-error policy to a newly attached target. Either
// half is omitted when its configuration is the no-op default.
func (em *EmulationManager) InitChainItems() []ChainItem {
	var items []ChainItem
	if !em.viewport.isZero() {
		items = append(items,
			ChainItem{
				Method: "Emulation.setDeviceMetricsOverride",
				Params: mustParams(struct {
					Width             int64   `json:"width"`
					Height            int64   `json:"height"`
					DeviceScaleFactor float64 `json:"deviceScaleFactor"`
					Mobile            bool    `json:"mobile"`
				}{em.viewport.Width, em.viewport.Height, em.viewport.DeviceScaleFactor, em.viewport.Mobile}),
			},
			ChainItem{
				Method: "Emulation.setTouchEmulationEnabled",
				Params: mustParams(struct {
					Enabled bool `json:"enabled"`
				}{em.viewport.Mobile}),
			},
		)
	}
	if em.ignoreHTTPSErrors {
		items = append(items, ChainItem{
			Method: "Security.setIgnoreCertificateErrors",
			Params: mustParams(struct {
				Ignore bool `json:"ignore"`
			}{true}),
		})
	}
	return items
}

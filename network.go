package handler

// RequestRecord is the correlated state of one network request, keyed by
// the browser's requestId.
type RequestRecord struct {
	RequestID string
	URL       string
	Method    string
	Status    int
	FromCache bool
	Finished  bool
	Failed    bool
	ErrorText string

	// Paused is set while a Fetch.requestPaused interception is outstanding
	// for this request and interception is enabled.
	Paused bool
	// AuthRequired is set while a Fetch.authRequired challenge is
	// outstanding for this request.
	AuthRequired bool
}

// NetworkManager correlates request/response/loading events by requestId
// and, when interception is enabled, tracks which requests are parked
// awaiting a continue/fulfill/fail or auth decision (spec section 4.4).
type NetworkManager struct {
	requests     map[string]*RequestRecord
	intercept    bool
	cacheEnabled bool
}

// NewNetworkManager returns an empty NetworkManager. intercept mirrors
// HandlerConfig.RequestIntercept and decides whether Fetch.enable is part of
// the init chain; cacheEnabled mirrors HandlerConfig.CacheEnabled and
// decides the polarity of the init chain's Network.setCacheDisabled call.
func NewNetworkManager(intercept, cacheEnabled bool) *NetworkManager {
	return &NetworkManager{
		requests:     make(map[string]*RequestRecord),
		intercept:    intercept,
		cacheEnabled: cacheEnabled,
	}
}

// InitChainItems is the ordered set of calls that bring up the network
// subsystem for a newly attached target.
func (nm *NetworkManager) InitChainItems() []ChainItem {
	items := []ChainItem{
		{Method: "Network.enable", Params: emptyParams},
		{Method: "Network.setCacheDisabled", Params: mustParams(struct {
			CacheDisabled bool `json:"cacheDisabled"`
		}{!nm.cacheEnabled})},
	}
	if nm.intercept {
		items = append(items, ChainItem{
			Method: "Fetch.enable",
			Params: mustParams(struct {
				Patterns []struct{} `json:"patterns,omitempty"`
			}{}),
		})
	}
	return items
}

// Record returns the tracked state for requestID, if any.
func (nm *NetworkManager) Record(requestID string) (*RequestRecord, bool) {
	r, ok := nm.requests[requestID]
	return r, ok
}

// OnRequestWillBeSent handles Network.requestWillBeSent.
func (nm *NetworkManager) OnRequestWillBeSent(requestID, url, method string) {
	nm.requests[requestID] = &RequestRecord{RequestID: requestID, URL: url, Method: method}
}

// OnResponseReceived handles Network.responseReceived. An unknown requestId
// (the request predates Network.enable) is tolerated, not an error.
func (nm *NetworkManager) OnResponseReceived(requestID string, status int) {
	if r, ok := nm.requests[requestID]; ok {
		r.Status = status
	}
}

// OnRequestServedFromCache handles Network.requestServedFromCache.
func (nm *NetworkManager) OnRequestServedFromCache(requestID string) {
	if r, ok := nm.requests[requestID]; ok {
		r.FromCache = true
	}
}

// OnLoadingFinished handles Network.loadingFinished.
func (nm *NetworkManager) OnLoadingFinished(requestID string) {
	if r, ok := nm.requests[requestID]; ok {
		r.Finished = true
	}
}

// OnLoadingFailed handles Network.loadingFailed.
func (nm *NetworkManager) OnLoadingFailed(requestID, errorText string) {
	if r, ok := nm.requests[requestID]; ok {
		r.Failed = true
		r.ErrorText = errorText
	}
}

// OnFetchRequestPaused handles Fetch.requestPaused, recording that
// requestID is parked awaiting a continue/fulfill/fail decision. If the
// network domain never saw a matching requestWillBeSent (the fetch
// interception point and the network point can race), a record is created.
func (nm *NetworkManager) OnFetchRequestPaused(requestID, url, method string) {
	r, ok := nm.requests[requestID]
	if !ok {
		r = &RequestRecord{RequestID: requestID, URL: url, Method: method}
		nm.requests[requestID] = r
	}
	r.Paused = true
}

// OnFetchAuthRequired handles Fetch.authRequired.
func (nm *NetworkManager) OnFetchAuthRequired(requestID string) {
	r, ok := nm.requests[requestID]
	if !ok {
		r = &RequestRecord{RequestID: requestID}
		nm.requests[requestID] = r
	}
	r.AuthRequired = true
}

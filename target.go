package handler

import "time"

// TargetInfo is the subset of Target.TargetInfo the Handler needs to decide
// how to treat a target.
type TargetInfo struct {
	ID   TargetID
	Type string
	URL  string
}

// IsPage reports whether info describes a page target, as opposed to e.g. a
// worker, iframe, or background_page target.
func (i TargetInfo) IsPage() bool {
	return i.Type == "page"
}

// targetStage is a Target's position in its one-way initialization sequence.
// Stages never regress.
type targetStage int

// targetStage values, in the order a Target progresses through them.
const (
	stageInitializingFrame targetStage = iota
	stageInitializingNetwork
	stageInitializingPage
	stageInitializingEmulation
	stageInitialized
)

// TargetMessage is a tagged union of what Target.Poll can yield to the
// Handler. Exactly one field is non-nil.
type TargetMessage struct {
	// Dispatch is a protocol call the Handler should send. Kind says how the
	// eventual response must be routed back.
	Dispatch *Request
	Kind     dispatchKind

	// Ready fires exactly once, when a page target has finished
	// initializing and its main frame has completed its first load.
	Ready bool

	// NavResult reports that a Goto call on this target has resolved.
	NavResult *NavigationResultEvent

	// Timeout fires exactly once, when an init-chain stage's cumulative
	// deadline passes. The target is terminal after this: the Handler must
	// close it and fail every pending waiter against it.
	Timeout *DeadlineExceededError
}

// dispatchKind says how the Handler should route the response to a
// dispatched call.
type dispatchKind int

const (
	// dispatchUser is a call made on behalf of a Page.Execute caller; its
	// response goes to that caller's waiter.
	dispatchUser dispatchKind = iota
	// dispatchChain is a call made by the target's own init chain; its
	// response advances that chain and is never exposed to a caller.
	dispatchChain
	// dispatchFireAndForget is a call whose response carries no information
	// the Handler needs (e.g. Page.navigate; navigation is resolved via
	// frame lifecycle events, not the command's own response).
	dispatchFireAndForget
)

// Target is the per-target state machine: it owns a target's frame,
// network, and emulation subsystems, drives their init chains in order, and
// demultiplexes protocol events and responses to them (spec section 4.6).
type Target struct {
	ID        TargetID
	SessionID SessionID
	Info      TargetInfo

	stage targetStage
	chain *CommandChain

	frame     *FrameManager
	network   *NetworkManager
	emulation *EmulationManager

	initTimeout time.Duration

	commandQueue []Request

	readySent bool
	closed    bool
}

// Closed reports whether the target was abandoned after an init-chain
// deadline was exceeded (spec section 4.6: "RequestTimeout ... terminal for
// this target").
func (t *Target) Closed() bool {
	return t.closed
}

// NewTarget constructs a Target already past attach: with auto-attach and
// flatten mode, a session id is only ever handed to the Handler once the
// browser confirms the attach, so there is no separate "waiting to attach"
// state to represent here.
func NewTarget(id TargetID, session SessionID, info TargetInfo, cfg HandlerConfig) *Target {
	t := &Target{
		ID:          id,
		SessionID:   session,
		Info:        info,
		frame:       NewFrameManager(),
		network:     NewNetworkManager(cfg.requestIntercept, cfg.cacheEnabled),
		emulation:   NewEmulationManager(cfg.viewport, cfg.ignoreHTTPSErrors),
		initTimeout: cfg.requestTimeout,
	}
	t.chain = NewCommandChain(time.Now(), t.frame.FrameInitChainItems(), t.initTimeout)
	return t
}

// Execute enqueues a user-issued protocol call for dispatch in the next
// Poll. Calls are sent FIFO, after any init-chain progress but ahead of
// sub-manager polling.
func (t *Target) Execute(req Request) {
	req.SessionID = t.SessionID
	t.commandQueue = append(t.commandQueue, req)
}

// Goto starts a navigation on the target's main frame.
func (t *Target) Goto(now time.Time, url string, timeout time.Duration) NavigationID {
	return t.frame.Goto(now, url, timeout)
}

// MainFrame returns the target's main frame, or nil if the frame tree has
// not yet been established.
func (t *Target) MainFrame() *Frame {
	return t.frame.MainFrame()
}

// Initialized reports whether the target has finished its init chains.
func (t *Target) Initialized() bool {
	return t.stage == stageInitialized
}

// OnEvent routes an inbound event to the owning sub-manager by domain.
func (t *Target) OnEvent(ev Event) {
	switch ev.Domain() {
	case "Page":
		t.onPageEvent(ev)
	case "Runtime":
		t.onRuntimeEvent(ev)
	case "Network":
		t.onNetworkEvent(ev)
	case "Fetch":
		t.onFetchEvent(ev)
	}
}

func (t *Target) onPageEvent(ev Event) {
	switch ev.Method {
	case "Page.frameAttached":
		var p struct {
			FrameID       FrameID `json:"frameId"`
			ParentFrameID FrameID `json:"parentFrameId"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnFrameAttached(p.FrameID, p.ParentFrameID)
		}
	case "Page.frameDetached":
		var p struct {
			FrameID FrameID `json:"frameId"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnFrameDetached(p.FrameID)
		}
	case "Page.frameNavigated":
		var p struct {
			Frame struct {
				ID       FrameID  `json:"id"`
				ParentID FrameID  `json:"parentId"`
				LoaderID LoaderID `json:"loaderId"`
				URL      string   `json:"url"`
			} `json:"frame"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnFrameNavigated(p.Frame.ID, p.Frame.ParentID, p.Frame.URL, p.Frame.LoaderID)
		}
	case "Page.navigatedWithinDocument":
		var p struct {
			FrameID FrameID `json:"frameId"`
			URL     string  `json:"url"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnNavigatedWithinDocument(p.FrameID, p.URL)
		}
	case "Page.lifecycleEvent":
		var p struct {
			FrameID  FrameID  `json:"frameId"`
			LoaderID LoaderID `json:"loaderId"`
			Name     string   `json:"name"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnLifecycleEvent(p.FrameID, p.LoaderID, p.Name)
		}
	case "Page.frameStartedLoading":
		var p struct {
			FrameID FrameID `json:"frameId"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnFrameStartedLoading(p.FrameID)
		}
	}
}

func (t *Target) onRuntimeEvent(ev Event) {
	switch ev.Method {
	case "Runtime.executionContextCreated":
		var p struct {
			Context struct {
				ID      int64  `json:"id"`
				AuxData struct {
					FrameID FrameID `json:"frameId"`
				} `json:"auxData"`
			} `json:"context"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnExecutionContextCreated(p.Context.AuxData.FrameID, p.Context.ID)
		}
	case "Runtime.executionContextDestroyed":
		var p struct {
			ExecutionContextID int64 `json:"executionContextId"`
		}
		if decodeParams(ev.Params, &p) {
			t.frame.OnExecutionContextDestroyed(p.ExecutionContextID)
		}
	case "Runtime.executionContextsCleared":
		t.frame.OnExecutionContextsCleared()
	}
}

func (t *Target) onNetworkEvent(ev Event) {
	switch ev.Method {
	case "Network.requestWillBeSent":
		var p struct {
			RequestID string `json:"requestId"`
			Request   struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"request"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnRequestWillBeSent(p.RequestID, p.Request.URL, p.Request.Method)
		}
	case "Network.responseReceived":
		var p struct {
			RequestID string `json:"requestId"`
			Response  struct {
				Status int `json:"status"`
			} `json:"response"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnResponseReceived(p.RequestID, p.Response.Status)
		}
	case "Network.requestServedFromCache":
		var p struct {
			RequestID string `json:"requestId"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnRequestServedFromCache(p.RequestID)
		}
	case "Network.loadingFinished":
		var p struct {
			RequestID string `json:"requestId"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnLoadingFinished(p.RequestID)
		}
	case "Network.loadingFailed":
		var p struct {
			RequestID    string `json:"requestId"`
			ErrorText    string `json:"errorText"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnLoadingFailed(p.RequestID, p.ErrorText)
		}
	}
}

func (t *Target) onFetchEvent(ev Event) {
	switch ev.Method {
	case "Fetch.requestPaused":
		var p struct {
			RequestID string `json:"requestId"`
			Request   struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"request"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnFetchRequestPaused(p.RequestID, p.Request.URL, p.Request.Method)
		}
	case "Fetch.authRequired":
		var p struct {
			RequestID string `json:"requestId"`
		}
		if decodeParams(ev.Params, &p) {
			t.network.OnFetchAuthRequired(p.RequestID)
		}
	}
}

// OnChainResponse reports that the in-flight init chain call named method
// has been answered, possibly advancing to the next stage.
func (t *Target) OnChainResponse(method string) {
	if t.chain != nil {
		t.chain.ReceivedResponse(method)
	}
}

// Poll advances the target's init chain, then drains queued user commands,
// then polls its frame manager, per the fixed priority order: init-state
// progress dominates, then FIFO commands, then sub-manager events.
func (t *Target) Poll(now time.Time) *TargetMessage {
	if t.closed {
		return nil
	}

	if msg := t.pollInit(now); msg != nil {
		return msg
	}

	if len(t.commandQueue) > 0 {
		req := t.commandQueue[0]
		t.commandQueue = t.commandQueue[1:]
		return &TargetMessage{Dispatch: &req, Kind: dispatchUser}
	}

	if t.stage == stageInitialized {
		if fe := t.frame.Poll(now); fe != nil {
			if fe.Request != nil {
				req := fe.Request.Req
				req.SessionID = t.SessionID
				return &TargetMessage{Dispatch: &req, Kind: dispatchFireAndForget}
			}
			if fe.Result != nil {
				return &TargetMessage{NavResult: fe.Result}
			}
		}

		if !t.readySent && t.Info.IsPage() {
			if mf := t.frame.MainFrame(); mf != nil && mf.IsLoaded() {
				t.readySent = true
				return &TargetMessage{Ready: true}
			}
		}
	}

	return nil
}

// pollInit drives the init-chain state machine one step: poll the current
// stage's chain, dispatch its next item, advance to the next stage once the
// chain completes, or surface a deadline error.
func (t *Target) pollInit(now time.Time) *TargetMessage {
	if t.stage == stageInitialized {
		return nil
	}

	res := t.chain.Poll(now)
	switch {
	case res.Err != nil:
		// The stage failed to complete in time; the target is abandoned.
		// Stage is pinned at Initialized so pollInit never polls the chain
		// again, and closed so the Handler tears it down on this message.
		t.stage = stageInitialized
		t.closed = true
		dl, _ := res.Err.(*DeadlineExceededError)
		return &TargetMessage{Timeout: dl}
	case res.Item != nil:
		req := Request{Method: res.Item.Method, Params: res.Item.Params, SessionID: t.SessionID}
		return &TargetMessage{Dispatch: &req, Kind: dispatchChain}
	case res.Pending:
		return nil
	case res.Completed:
		t.advanceStage(now)
		return t.pollInit(now)
	}
	return nil
}

func (t *Target) advanceStage(now time.Time) {
	switch t.stage {
	case stageInitializingFrame:
		t.stage = stageInitializingNetwork
		t.chain = NewCommandChain(now, t.network.InitChainItems(), t.initTimeout)
	case stageInitializingNetwork:
		t.stage = stageInitializingPage
		t.chain = NewCommandChain(now, t.frame.PageInitChainItems(), t.initTimeout)
	case stageInitializingPage:
		t.stage = stageInitializingEmulation
		t.chain = NewCommandChain(now, t.emulation.InitChainItems(), t.initTimeout)
	case stageInitializingEmulation:
		t.stage = stageInitialized
		t.chain = nil
	}
}

// OnFrameTree consumes the result of the InitializingFrame stage's
// Page.getFrameTree call.
func (t *Target) OnFrameTree(result []byte) error {
	return t.frame.OnFrameTree(result)
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// pendingKind says how the Handler should route the response to a call it
// is waiting on.
type pendingKind int

const (
	pendingUser pendingKind = iota
	pendingChain
	pendingFireAndForget
	pendingBrowser
)

type pendingCall struct {
	kind     pendingKind
	targetID TargetID
	method   string
	reply    chan execReply
}

type execReply struct {
	result json.RawMessage
	err    error
}

type execRequest struct {
	targetID TargetID
	req      Request
	reply    chan execReply
}

type navWaitRequest struct {
	targetID TargetID
	reply    chan execReply
}

type gotoRequest struct {
	targetID TargetID
	url      string
	timeout  time.Duration
	reply    chan NavigationID
}

type frameQuery struct {
	targetID TargetID
	reply    chan *Frame
}

// Handler is the single-threaded event loop that owns a Transport, every
// attached Target, and the CallID/SessionID correlation tables (spec
// section 4.7). All state is touched only from the goroutine running Run;
// every other method communicates with it over channels.
type Handler struct {
	transport Transport
	cfg       HandlerConfig
	logger    *slog.Logger

	nextCallID CallID
	pending    map[CallID]pendingCall

	sessions map[SessionID]TargetID
	targets  map[TargetID]*Target

	navWaiters map[TargetID][]chan execReply
	// pendingUserReplies holds reply channels for Execute calls queued on a
	// target but not yet dispatched; popped in the same FIFO order the
	// target's command queue dispatches them.
	pendingUserReplies map[TargetID][]chan execReply

	inbound chan []byte
	readErr chan error

	execChan    chan execRequest
	navWaitChan chan navWaitRequest
	gotoChan    chan gotoRequest
	frameChan   chan frameQuery

	ready chan *Page

	closed   bool
	closeErr error
}

// NewHandler constructs a Handler bound to transport. Call Run to start
// processing; the Handler does nothing until Run is called.
func NewHandler(transport Transport, cfg HandlerConfig) *Handler {
	return &Handler{
		transport:          transport,
		cfg:                cfg,
		logger:             cfg.logger,
		pending:            make(map[CallID]pendingCall),
		sessions:           make(map[SessionID]TargetID),
		targets:            make(map[TargetID]*Target),
		navWaiters:         make(map[TargetID][]chan execReply),
		pendingUserReplies: make(map[TargetID][]chan execReply),
		inbound:            make(chan []byte, 64),
		readErr:            make(chan error, 1),
		execChan:           make(chan execRequest),
		navWaitChan:        make(chan navWaitRequest),
		gotoChan:           make(chan gotoRequest),
		frameChan:          make(chan frameQuery),
		ready:              make(chan *Page, 16),
	}
}

// Run starts the reader goroutine and processes passes until ctx is done or
// the transport closes. It owns all Handler state for its duration and must
// not be called more than once concurrently.
func (h *Handler) Run(ctx context.Context) error {
	go h.readLoop()

	h.sendBrowserInit()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx.Err())
			return ctx.Err()

		case data, ok := <-h.inbound:
			if !ok {
				continue
			}
			h.handleFrame(data)

		case err := <-h.readErr:
			h.shutdown(err)
			return err

		case req := <-h.execChan:
			h.handleExec(req)

		case req := <-h.navWaitChan:
			h.handleNavWait(req)

		case req := <-h.gotoChan:
			h.handleGoto(req)

		case req := <-h.frameChan:
			if t, ok := h.targets[req.targetID]; ok {
				req.reply <- t.MainFrame()
			} else {
				req.reply <- nil
			}

		case <-ticker.C:
			// wake to age out deadlines even with no I/O
		}

		h.pass()
	}
}

// readLoop feeds inbound frames to the main loop over a channel; it is the
// only goroutine besides Run that touches the Handler, and it never reaches
// into Handler state directly.
func (h *Handler) readLoop() {
	for {
		data, err := h.transport.ReadMessage()
		if err != nil {
			h.readErr <- err
			return
		}
		h.inbound <- data
	}
}

func (h *Handler) shutdown(err error) {
	if h.closed {
		return
	}
	h.closed = true
	h.closeErr = err
	for _, pc := range h.pending {
		if pc.kind == pendingUser && pc.reply != nil {
			pc.reply <- execReply{err: ErrTransportClosed}
		}
	}
	for _, replies := range h.pendingUserReplies {
		for _, reply := range replies {
			reply <- execReply{err: ErrTransportClosed}
		}
	}
	for _, waiters := range h.navWaiters {
		for _, w := range waiters {
			w <- execReply{err: ErrTransportClosed}
		}
	}
	h.transport.Close()
}

func (h *Handler) allocCallID() CallID {
	h.nextCallID++
	return h.nextCallID
}

func (h *Handler) send(id CallID, req Request) {
	call := NewMethodCall(id, req)
	buf, err := call.MarshalJSON()
	if err != nil {
		logDropped(h.logger, "marshal failed", "method", req.Method, "err", err)
		return
	}
	logDispatch(h.logger, id, req)
	if err := h.transport.WriteMessage(buf); err != nil {
		logDropped(h.logger, "write failed", "method", req.Method, "err", err)
	}
}

// sendBrowserInit issues the browser-level calls that make every existing
// and future target flow through attachedToTarget with a session id.
func (h *Handler) sendBrowserInit() {
	id := h.allocCallID()
	h.pending[id] = pendingCall{kind: pendingBrowser, method: "Target.setDiscoverTargets"}
	h.send(id, Request{Method: "Target.setDiscoverTargets", Params: mustParams(struct {
		Discover bool `json:"discover"`
	}{true})})

	id = h.allocCallID()
	h.pending[id] = pendingCall{kind: pendingBrowser, method: "Target.setAutoAttach"}
	h.send(id, Request{Method: "Target.setAutoAttach", Params: mustParams(struct {
		AutoAttach             bool `json:"autoAttach"`
		WaitForDebuggerOnStart bool `json:"waitForDebuggerOnStart"`
		Flatten                bool `json:"flatten"`
	}{true, true, true})})
}

// pass advances every target's state machine until each goes dry, a single
// "tick" of the cooperative loop (spec section 4.7).
func (h *Handler) pass() {
	now := time.Now()
	for id, t := range h.targets {
		for {
			msg := t.Poll(now)
			if msg == nil {
				break
			}
			h.handleTargetMessage(id, t, msg)
			if t.Closed() {
				break
			}
		}
	}
}

func (h *Handler) handleTargetMessage(id TargetID, t *Target, msg *TargetMessage) {
	switch {
	case msg.Dispatch != nil:
		callID := h.allocCallID()
		pc := pendingCall{kind: dispatchToPendingKind(msg.Kind), targetID: id, method: msg.Dispatch.Method}
		if pc.kind == pendingUser {
			if replies := h.pendingUserReplies[id]; len(replies) > 0 {
				pc.reply = replies[0]
				h.pendingUserReplies[id] = replies[1:]
			}
		}
		h.pending[callID] = pc
		h.send(callID, *msg.Dispatch)

	case msg.Ready:
		h.ready <- newPage(h, id, t)

	case msg.NavResult != nil:
		waiters := h.navWaiters[id]
		if len(waiters) == 0 {
			return
		}
		w := waiters[0]
		h.navWaiters[id] = waiters[1:]
		var result json.RawMessage
		if msg.NavResult.Err == nil {
			result, _ = json.Marshal(msg.NavResult.URL)
		}
		w <- execReply{result: result, err: msg.NavResult.Err}

	case msg.Timeout != nil:
		h.closeTarget(id, msg.Timeout)
	}
}

// closeTarget tears down a target that is no longer reachable, whether
// because its init chain exceeded its deadline or the browser itself
// detached it: every pending waiter against it (call waiters, navigation
// waiters, and queued-but-undispatched Execute replies) fails with err, and
// the target is dropped from every Handler-owned table.
func (h *Handler) closeTarget(id TargetID, err error) {
	logDropped(h.logger, "target closed", "targetId", string(id), "err", err)

	// Remove the target from every lookup table before notifying waiters,
	// so that any command racing this close (dispatched from another
	// goroutine the instant a waiter unblocks) sees it gone rather than
	// queuing against a target that will never be polled again.
	if t, ok := h.targets[id]; ok {
		delete(h.sessions, t.SessionID)
	}
	delete(h.targets, id)

	queuedReplies := h.pendingUserReplies[id]
	delete(h.pendingUserReplies, id)
	navReplies := h.navWaiters[id]
	delete(h.navWaiters, id)

	for callID, pc := range h.pending {
		if pc.targetID == id && pc.kind == pendingUser && pc.reply != nil {
			pc.reply <- execReply{err: err}
			delete(h.pending, callID)
		}
	}
	for _, reply := range queuedReplies {
		reply <- execReply{err: err}
	}
	for _, w := range navReplies {
		w <- execReply{err: err}
	}
}

func dispatchToPendingKind(k dispatchKind) pendingKind {
	switch k {
	case dispatchChain:
		return pendingChain
	case dispatchFireAndForget:
		return pendingFireAndForget
	default:
		return pendingUser
	}
}

// handleFrame demultiplexes one inbound wire frame into a Response routed
// by CallID, or an Event routed by SessionID.
func (h *Handler) handleFrame(data []byte) {
	resp, ev, err := ParseMessage(data)
	if err != nil {
		logDropped(h.logger, "malformed frame", "err", err)
		return
	}
	if resp != nil {
		h.handleResponse(resp)
		return
	}
	h.handleEvent(*ev)
}

func (h *Handler) handleResponse(resp *Response) {
	pc, ok := h.pending[resp.ID]
	if !ok {
		logDropped(h.logger, "response for unknown call id", "id", resp.ID)
		return
	}
	delete(h.pending, resp.ID)

	switch pc.kind {
	case pendingUser:
		var respErr error
		if resp.Error != nil {
			respErr = resp.Error
		}
		pc.reply <- execReply{result: resp.Result, err: respErr}
		if t, ok := h.targets[pc.targetID]; ok {
			t.OnChainResponse(pc.method)
		}

	case pendingChain:
		t, ok := h.targets[pc.targetID]
		if !ok {
			return
		}
		if pc.method == "Page.getFrameTree" && resp.Error == nil {
			if err := t.OnFrameTree(resp.Result); err != nil {
				logDropped(h.logger, "bad frame tree", "err", err)
			}
		}
		t.OnChainResponse(pc.method)

	case pendingFireAndForget, pendingBrowser:
		if resp.Error != nil {
			logDropped(h.logger, "call failed", "method", pc.method, "err", resp.Error)
		}
		if t, ok := h.targets[pc.targetID]; ok {
			t.OnChainResponse(pc.method)
		}
	}
}

func (h *Handler) handleEvent(ev Event) {
	logEvent(h.logger, ev)
	if ev.SessionID == "" {
		h.onBrowserEvent(ev)
		return
	}
	targetID, ok := h.sessions[ev.SessionID]
	if !ok {
		logDropped(h.logger, "event for unknown session", "sessionId", string(ev.SessionID), "method", ev.Method)
		return
	}
	t, ok := h.targets[targetID]
	if !ok {
		return
	}
	t.OnEvent(ev)
}

func (h *Handler) onBrowserEvent(ev Event) {
	switch ev.Method {
	case "Target.attachedToTarget":
		var p struct {
			SessionID SessionID `json:"sessionId"`
			TargetInfo struct {
				TargetID TargetID `json:"targetId"`
				Type     string   `json:"type"`
				URL      string   `json:"url"`
			} `json:"targetInfo"`
		}
		if !decodeParams(ev.Params, &p) {
			return
		}
		info := TargetInfo{ID: p.TargetInfo.TargetID, Type: p.TargetInfo.Type, URL: p.TargetInfo.URL}
		t := NewTarget(info.ID, p.SessionID, info, h.cfg)
		h.targets[info.ID] = t
		h.sessions[p.SessionID] = info.ID

	case "Target.detachedFromTarget":
		var p struct {
			SessionID SessionID `json:"sessionId"`
		}
		if !decodeParams(ev.Params, &p) {
			return
		}
		targetID, ok := h.sessions[p.SessionID]
		if !ok {
			return
		}
		h.closeTarget(targetID, ErrNotFound)

	case "Target.targetInfoChanged":
		var p struct {
			TargetInfo struct {
				TargetID TargetID `json:"targetId"`
				URL      string   `json:"url"`
			} `json:"targetInfo"`
		}
		if !decodeParams(ev.Params, &p) {
			return
		}
		if t, ok := h.targets[p.TargetInfo.TargetID]; ok {
			t.Info.URL = p.TargetInfo.URL
		}
	}
}

// handleExec queues req on its target's command queue rather than
// dispatching it directly, so that the target's Poll sends it in FIFO order
// on a poll where the init chain has no item ready to emit; it does not wait
// for the init chain to finish. The reply channel is stashed and
// matched up with the eventual CallID once the target's Poll actually
// emits this item for dispatch.
func (h *Handler) handleExec(req execRequest) {
	t, ok := h.targets[req.targetID]
	if !ok {
		req.reply <- execReply{err: ErrNotFound}
		return
	}
	t.Execute(req.req)
	h.pendingUserReplies[req.targetID] = append(h.pendingUserReplies[req.targetID], req.reply)
}

func (h *Handler) handleNavWait(req navWaitRequest) {
	h.navWaiters[req.targetID] = append(h.navWaiters[req.targetID], req.reply)
}

func (h *Handler) handleGoto(req gotoRequest) {
	t, ok := h.targets[req.targetID]
	if !ok {
		req.reply <- 0
		return
	}
	req.reply <- t.Goto(time.Now(), req.url, req.timeout)
}

// execute sends req against targetID and waits for its matched response,
// per Page.Execute's contract (spec section 4.8).
func (h *Handler) execute(ctx context.Context, targetID TargetID, req Request) (json.RawMessage, error) {
	reply := make(chan execReply, 1)
	select {
	case h.execChan <- execRequest{targetID: targetID, req: req, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// waitForNavigation blocks until the next navigation on targetID resolves,
// returning the url recorded by the frameNavigated event that completed it.
func (h *Handler) waitForNavigation(ctx context.Context, targetID TargetID) (string, error) {
	reply := make(chan execReply, 1)
	select {
	case h.navWaitChan <- navWaitRequest{targetID: targetID, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		if r.err != nil {
			return "", r.err
		}
		var url string
		if err := json.Unmarshal(r.result, &url); err != nil {
			return "", err
		}
		return url, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// goTo starts a navigation to url on targetID's main frame.
func (h *Handler) goTo(ctx context.Context, targetID TargetID, url string, timeout time.Duration) (NavigationID, error) {
	reply := make(chan NavigationID, 1)
	select {
	case h.gotoChan <- gotoRequest{targetID: targetID, url: url, timeout: timeout, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// mainFrame returns targetID's current main frame, or nil if its frame tree
// has not resolved yet.
func (h *Handler) mainFrame(ctx context.Context, targetID TargetID) (*Frame, error) {
	reply := make(chan *Frame, 1)
	select {
	case h.frameChan <- frameQuery{targetID: targetID, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case f := <-reply:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start runs the Handler's event loop on its own goroutine and returns a
// channel that receives Run's terminal error exactly once. When the
// WithWaitForInitialPage option was set, Start additionally blocks
// until the first page target becomes ready and returns it; otherwise it
// returns immediately with a nil Page, leaving WaitForPage to the caller.
func (h *Handler) Start(ctx context.Context) (*Page, <-chan error) {
	runErr := make(chan error, 1)
	go func() { runErr <- h.Run(ctx) }()

	if !h.cfg.waitForInitialPage {
		return nil, runErr
	}
	page, err := h.WaitForPage(ctx)
	if err != nil {
		return nil, runErr
	}
	return page, runErr
}

// WaitForPage blocks until the next target finishes initializing and
// reports itself ready (spec's page-creation initiator).
func (h *Handler) WaitForPage(ctx context.Context) (*Page, error) {
	select {
	case p := <-h.ready:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

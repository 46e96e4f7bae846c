package handler

import (
	"encoding/json"
	"time"
)

// NavigationState is the lifecycle of one Navigation (spec section 3).
type NavigationState int

// NavigationState values.
const (
	NavigationRequested NavigationState = iota
	NavigationInFlight
	NavigationCompletedOk
	NavigationCompletedErr
)

// Navigation tracks one goto call from creation to resolution.
type Navigation struct {
	ID       NavigationID
	Frame    FrameID
	URL      string
	Deadline time.Time
	State    NavigationState
	Err      error

	// startLoaderID is the main frame's loader id at the moment goto was
	// called; the navigation only resolves once a *different* loader id
	// reaches "load".
	startLoaderID LoaderID
	// targetLoaderID is set once frameNavigated reports the new loader id
	// for this navigation.
	targetLoaderID LoaderID
}

// Frame is one document context (main or iframe) inside a target.
type Frame struct {
	ID        FrameID
	Parent    FrameID
	URL       string
	LoaderID  LoaderID
	Name      string
	Lifecycle map[string]struct{}
}

// IsLoaded reports whether the frame's current loader has observed the
// "load" lifecycle event.
func (f *Frame) IsLoaded() bool {
	if f.LoaderID == "" {
		return false
	}
	_, ok := f.Lifecycle["load"]
	return ok
}

func newFrame(id, parent FrameID) *Frame {
	return &Frame{ID: id, Parent: parent, Lifecycle: make(map[string]struct{})}
}

// NavigationRequestEvent is a FrameManager output asking the Target (and, in
// turn, the Handler) to dispatch req and associate its eventual response
// with id.
type NavigationRequestEvent struct {
	ID  NavigationID
	Req Request
}

// NavigationResultEvent is a FrameManager output reporting that navigation
// id has resolved.
type NavigationResultEvent struct {
	ID  NavigationID
	URL string
	Err error
}

// FrameEvent is a tagged union of what FrameManager.Poll can yield. Exactly
// one field is non-nil.
type FrameEvent struct {
	Request *NavigationRequestEvent
	Result  *NavigationResultEvent
}

// FrameManager tracks the frame tree of one target, drives its lifecycle,
// and resolves goto navigations (spec section 4.3).
type FrameManager struct {
	frames      map[FrameID]*Frame
	mainFrameID FrameID

	execContexts map[FrameID]int64

	navCounter NavigationID
	pending    []*Navigation

	queued []FrameEvent
}

// NewFrameManager returns an empty FrameManager, before the initial
// getFrameTree response has populated it.
func NewFrameManager() *FrameManager {
	return &FrameManager{
		frames:       make(map[FrameID]*Frame),
		execContexts: make(map[FrameID]int64),
	}
}

// FrameInitChainItems is the ordered set of calls that establish the frame
// tree for a newly attached target: the InitializingFrame stage.
func (fm *FrameManager) FrameInitChainItems() []ChainItem {
	return []ChainItem{
		{Method: "Page.enable", Params: emptyParams},
		{Method: "Page.getFrameTree", Params: emptyParams},
	}
}

// PageInitChainItems is the ordered set of calls that bring the page's
// lifecycle reporting and JS runtime up once the frame tree is known: the
// InitializingPage stage.
func (fm *FrameManager) PageInitChainItems() []ChainItem {
	return []ChainItem{
		{Method: "Page.setLifecycleEventsEnabled", Params: mustParams(struct {
			Enabled bool `json:"enabled"`
		}{true})},
		{Method: "Runtime.enable", Params: emptyParams},
		{Method: "Runtime.runIfWaitingForDebugger", Params: emptyParams},
	}
}

// MainFrame returns the root frame, or nil before getFrameTree has resolved.
func (fm *FrameManager) MainFrame() *Frame {
	return fm.frames[fm.mainFrameID]
}

// frameTreeNode mirrors the shape of Page.getFrameTree's result; only the
// fields the Handler needs are kept (protocol types themselves are out of
// scope).
type frameTreeNode struct {
	Frame struct {
		ID       string `json:"id"`
		ParentID string `json:"parentId,omitempty"`
		LoaderID string `json:"loaderId,omitempty"`
		Name     string `json:"name,omitempty"`
		URL      string `json:"url,omitempty"`
	} `json:"frame"`
	ChildFrames []frameTreeNode `json:"childFrames,omitempty"`
}

type getFrameTreeResult struct {
	FrameTree frameTreeNode `json:"frameTree"`
}

// OnFrameTree consumes the result of the init chain's Page.getFrameTree
// call, establishing the tree's root.
func (fm *FrameManager) OnFrameTree(result json.RawMessage) error {
	var parsed getFrameTreeResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return err
	}
	fm.insertFrameTree(parsed.FrameTree, "")
	fm.mainFrameID = FrameID(parsed.FrameTree.Frame.ID)
	return nil
}

func (fm *FrameManager) insertFrameTree(node frameTreeNode, parent FrameID) {
	f := newFrame(FrameID(node.Frame.ID), parent)
	f.URL = node.Frame.URL
	f.LoaderID = LoaderID(node.Frame.LoaderID)
	f.Name = node.Frame.Name
	fm.frames[f.ID] = f
	for _, child := range node.ChildFrames {
		fm.insertFrameTree(child, f.ID)
	}
}

// OnFrameAttached handles Page.frameAttached.
func (fm *FrameManager) OnFrameAttached(id, parent FrameID) {
	if _, ok := fm.frames[id]; ok {
		return
	}
	fm.frames[id] = newFrame(id, parent)
}

// OnFrameDetached handles Page.frameDetached.
func (fm *FrameManager) OnFrameDetached(id FrameID) {
	delete(fm.frames, id)
}

// OnFrameNavigated handles Page.frameNavigated: the frame's url and loader
// id are replaced and its lifecycle set cleared.
func (fm *FrameManager) OnFrameNavigated(id, parent FrameID, url string, loaderID LoaderID) {
	f, ok := fm.frames[id]
	if !ok {
		f = newFrame(id, parent)
		fm.frames[id] = f
	}
	oldLoader := f.LoaderID
	f.Parent = parent
	f.URL = url
	f.LoaderID = loaderID
	f.Lifecycle = make(map[string]struct{})

	for _, nav := range fm.pending {
		if nav.Frame == id && nav.targetLoaderID == "" && loaderID != oldLoader && loaderID != nav.startLoaderID {
			nav.targetLoaderID = loaderID
			nav.URL = url
			nav.State = NavigationInFlight
		}
	}
}

// OnNavigatedWithinDocument handles Page.navigatedWithinDocument: the url
// changes but lifecycle is not reset, since no new document load occurs.
func (fm *FrameManager) OnNavigatedWithinDocument(id FrameID, url string) {
	if f, ok := fm.frames[id]; ok {
		f.URL = url
	}
}

// OnLifecycleEvent handles Page.lifecycleEvent, recording name against the
// frame if it matches the frame's current loader, and resolving any
// navigation waiting on that frame's "load".
func (fm *FrameManager) OnLifecycleEvent(id FrameID, loaderID LoaderID, name string) {
	f, ok := fm.frames[id]
	if !ok || f.LoaderID != loaderID {
		return
	}
	f.Lifecycle[name] = struct{}{}

	if name != "load" {
		return
	}
	remaining := fm.pending[:0]
	for _, nav := range fm.pending {
		if nav.Frame == id && nav.targetLoaderID == loaderID {
			nav.State = NavigationCompletedOk
			fm.queued = append(fm.queued, FrameEvent{Result: &NavigationResultEvent{ID: nav.ID, URL: nav.URL}})
			continue
		}
		remaining = append(remaining, nav)
	}
	fm.pending = remaining
}

// OnFrameStartedLoading handles Page.frameStartedLoading. No state change is
// required beyond having consumed the event.
func (fm *FrameManager) OnFrameStartedLoading(FrameID) {}

// OnExecutionContextCreated handles Runtime.executionContextCreated for the
// frame the context belongs to, if any.
func (fm *FrameManager) OnExecutionContextCreated(frame FrameID, contextID int64) {
	if frame == "" {
		return
	}
	fm.execContexts[frame] = contextID
}

// OnExecutionContextDestroyed handles Runtime.executionContextDestroyed.
func (fm *FrameManager) OnExecutionContextDestroyed(contextID int64) {
	for frame, id := range fm.execContexts {
		if id == contextID {
			delete(fm.execContexts, frame)
		}
	}
}

// OnExecutionContextsCleared handles Runtime.executionContextsCleared.
func (fm *FrameManager) OnExecutionContextsCleared() {
	fm.execContexts = make(map[FrameID]int64)
}

// Goto mints a NavigationID for a navigation to url on the main frame and
// queues the outbound Page.navigate request. now is used to compute the
// navigation's own deadline, independent of any command chain.
func (fm *FrameManager) Goto(now time.Time, url string, timeout time.Duration) NavigationID {
	fm.navCounter++
	id := fm.navCounter

	var startLoader LoaderID
	if mf := fm.MainFrame(); mf != nil {
		startLoader = mf.LoaderID
	}

	nav := &Navigation{
		ID:            id,
		Frame:         fm.mainFrameID,
		URL:           url,
		Deadline:      now.Add(timeout),
		State:         NavigationRequested,
		startLoaderID: startLoader,
	}
	fm.pending = append(fm.pending, nav)

	req := Request{
		Method: "Page.navigate",
		Params: mustParams(struct {
			URL string `json:"url"`
		}{url}),
	}
	fm.queued = append(fm.queued, FrameEvent{Request: &NavigationRequestEvent{ID: id, Req: req}})
	return id
}

// Poll yields at most one FrameEvent: queued navigation requests/results
// first, then newly expired navigations.
func (fm *FrameManager) Poll(now time.Time) *FrameEvent {
	if len(fm.queued) > 0 {
		ev := fm.queued[0]
		fm.queued = fm.queued[1:]
		return &ev
	}

	remaining := fm.pending[:0]
	var expired *FrameEvent
	for _, nav := range fm.pending {
		if expired == nil && !now.Before(nav.Deadline) {
			nav.State = NavigationCompletedErr
			nav.Err = &DeadlineExceededError{Method: "Page.navigate"}
			expired = &FrameEvent{Result: &NavigationResultEvent{ID: nav.ID, Err: nav.Err}}
			continue
		}
		remaining = append(remaining, nav)
	}
	fm.pending = remaining
	return expired
}

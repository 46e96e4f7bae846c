package handler

import (
	"testing"
	"time"
)

func TestFrameIsLoaded(t *testing.T) {
	t.Parallel()

	f := newFrame("F1", "")
	if f.IsLoaded() {
		t.Fatal("IsLoaded() on a frame with no loader, want false")
	}

	f.LoaderID = "L1"
	if f.IsLoaded() {
		t.Fatal("IsLoaded() before \"load\" event, want false")
	}

	f.Lifecycle["load"] = struct{}{}
	if !f.IsLoaded() {
		t.Fatal("IsLoaded() after load event, want true")
	}
}

func TestFrameManagerOnFrameTree(t *testing.T) {
	t.Parallel()

	fm := NewFrameManager()
	tree := []byte(`{
		"frameTree": {
			"frame": {"id": "root", "loaderId": "L0", "url": "about:blank"},
			"childFrames": [
				{"frame": {"id": "child", "parentId": "root", "loaderId": "L0", "url": "about:blank"}}
			]
		}
	}`)
	if err := fm.OnFrameTree(tree); err != nil {
		t.Fatalf("OnFrameTree: %v", err)
	}

	mf := fm.MainFrame()
	if mf == nil || mf.ID != "root" {
		t.Fatalf("MainFrame() = %+v, want id root", mf)
	}
	if _, ok := fm.frames["child"]; !ok {
		t.Fatal("child frame not present after OnFrameTree")
	}
}

func TestFrameManagerGotoResolvesOnLoad(t *testing.T) {
	t.Parallel()

	fm := NewFrameManager()
	if err := fm.OnFrameTree([]byte(`{"frameTree":{"frame":{"id":"root","loaderId":"L0","url":"about:blank"}}}`)); err != nil {
		t.Fatalf("OnFrameTree: %v", err)
	}

	now := time.Now()
	id := fm.Goto(now, "https://example.com", 5*time.Second)

	ev := fm.Poll(now)
	if ev == nil || ev.Request == nil || ev.Request.ID != id {
		t.Fatalf("Poll() = %+v, want a NavigationRequestEvent for id %v", ev, id)
	}
	if ev.Request.Req.Method != "Page.navigate" {
		t.Errorf("method = %q, want Page.navigate", ev.Request.Req.Method)
	}

	// No further event until the navigation actually progresses.
	if ev := fm.Poll(now); ev != nil {
		t.Fatalf("Poll() = %+v, want nil before frameNavigated", ev)
	}

	fm.OnFrameNavigated("root", "", "https://example.com", "L1")
	fm.OnLifecycleEvent("root", "L1", "load")

	ev = fm.Poll(now)
	if ev == nil || ev.Result == nil {
		t.Fatalf("Poll() = %+v, want a NavigationResultEvent", ev)
	}
	if ev.Result.ID != id || ev.Result.Err != nil {
		t.Fatalf("got %+v, want a successful resolution of %v", ev.Result, id)
	}
}

func TestFrameManagerGotoTimesOut(t *testing.T) {
	t.Parallel()

	fm := NewFrameManager()
	if err := fm.OnFrameTree([]byte(`{"frameTree":{"frame":{"id":"root","loaderId":"L0"}}}`)); err != nil {
		t.Fatalf("OnFrameTree: %v", err)
	}

	start := time.Now()
	id := fm.Goto(start, "https://example.com", time.Second)
	fm.Poll(start) // drain the navigation request

	late := start.Add(2 * time.Second)
	ev := fm.Poll(late)
	if ev == nil || ev.Result == nil || ev.Result.ID != id {
		t.Fatalf("Poll() = %+v, want a timed-out NavigationResultEvent for %v", ev, id)
	}
	if _, ok := ev.Result.Err.(*DeadlineExceededError); !ok {
		t.Fatalf("err type = %T, want *DeadlineExceededError", ev.Result.Err)
	}
}

func TestFrameManagerLifecycleIgnoresStaleLoader(t *testing.T) {
	t.Parallel()

	fm := NewFrameManager()
	if err := fm.OnFrameTree([]byte(`{"frameTree":{"frame":{"id":"root","loaderId":"L0"}}}`)); err != nil {
		t.Fatalf("OnFrameTree: %v", err)
	}

	// A lifecycle event for an already-superseded loader id must not mark
	// the frame loaded under its current loader.
	fm.OnLifecycleEvent("root", "stale-loader", "load")
	if fm.MainFrame().IsLoaded() {
		t.Fatal("IsLoaded() = true after a stale-loader lifecycle event")
	}
}

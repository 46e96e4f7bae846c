package handler

import (
	"testing"
	"time"
)

func TestCommandChainEmpty(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := NewCommandChain(now, nil, time.Second)
	res := c.Poll(now)
	if !res.Completed {
		t.Fatalf("got %+v, want Completed", res)
	}
}

func TestCommandChainAdvancesOnMatchingResponse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	items := []ChainItem{{Method: "A"}, {Method: "B"}}
	c := NewCommandChain(now, items, time.Second)

	res := c.Poll(now)
	if res.Item == nil || res.Item.Method != "A" {
		t.Fatalf("got %+v, want item A", res)
	}

	// Polling again while A is outstanding must not re-emit or advance.
	res = c.Poll(now)
	if !res.Pending {
		t.Fatalf("got %+v, want Pending", res)
	}

	c.ReceivedResponse("A")
	res = c.Poll(now)
	if res.Item == nil || res.Item.Method != "B" {
		t.Fatalf("got %+v, want item B", res)
	}

	c.ReceivedResponse("B")
	res = c.Poll(now)
	if !res.Completed {
		t.Fatalf("got %+v, want Completed", res)
	}
	if !c.Done() {
		t.Error("Done() = false, want true")
	}
}

func TestCommandChainIgnoresMismatchedResponse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := NewCommandChain(now, []ChainItem{{Method: "A"}}, time.Second)
	c.Poll(now)

	c.ReceivedResponse("somethingElse")
	res := c.Poll(now)
	if !res.Pending {
		t.Fatalf("got %+v, want still Pending after mismatched response", res)
	}
}

func TestCommandChainDeadlineExceededOnce(t *testing.T) {
	t.Parallel()

	start := time.Now()
	c := NewCommandChain(start, []ChainItem{{Method: "A"}, {Method: "B"}}, time.Second)
	c.Poll(start)

	late := start.Add(3 * time.Second)
	res := c.Poll(late)
	if res.Err == nil {
		t.Fatalf("got %+v, want a DeadlineExceededError", res)
	}
	if _, ok := res.Err.(*DeadlineExceededError); !ok {
		t.Fatalf("err type = %T, want *DeadlineExceededError", res.Err)
	}

	// The second poll past the deadline must report Completed, not repeat
	// the error.
	res = c.Poll(late)
	if !res.Completed || res.Err != nil {
		t.Fatalf("got %+v, want Completed with no error", res)
	}
}

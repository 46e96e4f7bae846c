package handler

import (
	"encoding/json"
	"time"
)

// ChainItem is one (method, params) pair in a CommandChain.
type ChainItem struct {
	Method string
	Params json.RawMessage
}

// ChainResult is the outcome of one CommandChain.Poll call. Exactly one of
// Completed, Err, Pending, or Item is set.
type ChainResult struct {
	// Completed is true once every item has a matched response, or once the
	// deadline-exceeded result has already been reported.
	Completed bool
	// Err is set once, the first time Poll observes the deadline has
	// passed.
	Err error
	// Pending is true while a previously emitted item has not yet been
	// acknowledged.
	Pending bool
	// Item is the next item to dispatch.
	Item *ChainItem
}

// CommandChain is an ordered, deadline-bounded sequence of protocol calls
// sharing a single cumulative deadline, used to bring a target subsystem up
// (spec section 4.2). It never emits item k+1 before a response for item k
// has been observed.
type CommandChain struct {
	items    []ChainItem
	cursor   int
	deadline time.Time

	outstanding       bool
	outstandingMethod string

	timedOut       bool
	timeoutDrained bool
}

// NewCommandChain stores items and computes a deadline of now + timeout *
// len(items). An empty chain is immediately complete.
func NewCommandChain(now time.Time, items []ChainItem, perCommandTimeout time.Duration) *CommandChain {
	return &CommandChain{
		items:    items,
		deadline: now.Add(perCommandTimeout * time.Duration(len(items))),
	}
}

// Poll advances the chain. See ChainResult for the result shape.
func (c *CommandChain) Poll(now time.Time) ChainResult {
	if c.timeoutDrained {
		return ChainResult{Completed: true}
	}
	if c.cursor >= len(c.items) {
		return ChainResult{Completed: true}
	}
	if !c.timedOut {
		if !now.Before(c.deadline) {
			c.timedOut = true
			c.timeoutDrained = true
			return ChainResult{Err: &DeadlineExceededError{Method: c.items[c.cursor].Method}}
		}
	}
	if c.outstanding {
		return ChainResult{Pending: true}
	}
	item := c.items[c.cursor]
	c.outstanding = true
	c.outstandingMethod = item.Method
	return ChainResult{Item: &item}
}

// ReceivedResponse advances the cursor if method matches the currently
// outstanding item. Non-matching methods (responses to user-issued commands
// interleaved on the same target) are ignored.
func (c *CommandChain) ReceivedResponse(method string) {
	if c.outstanding && method == c.outstandingMethod {
		c.cursor++
		c.outstanding = false
		c.outstandingMethod = ""
	}
}

// Done reports whether every item has been acknowledged.
func (c *CommandChain) Done() bool {
	return c.cursor >= len(c.items)
}

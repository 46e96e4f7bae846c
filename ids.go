package handler

import "fmt"

// CallID correlates a Response to the Request that caused it. It is
// allocated monotonically by a Handler at dispatch time and is unique within
// that Handler's lifetime.
type CallID int64

// String satisfies fmt.Stringer.
func (id CallID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

// SessionID is assigned by the browser when a target is attached with
// flatten=true. Every command issued against that target after attach, and
// every event the target emits, carries this id.
type SessionID string

// String satisfies fmt.Stringer.
func (id SessionID) String() string {
	return string(id)
}

// TargetID identifies a tab, worker, or other attachable browser-side
// object. It is immutable for the target's lifetime and assigned by the
// browser.
type TargetID string

// String satisfies fmt.Stringer.
func (id TargetID) String() string {
	return string(id)
}

// FrameID identifies a document context (main or iframe) inside a target.
type FrameID string

// String satisfies fmt.Stringer.
func (id FrameID) String() string {
	return string(id)
}

// LoaderID identifies a single top-level load of a frame. Lifecycle events
// are scoped to the loader that produced them.
type LoaderID string

// NavigationID identifies one goto request from creation to resolution.
// Allocated monotonically by a FrameManager.
type NavigationID int64

// String satisfies fmt.Stringer.
func (id NavigationID) String() string {
	return fmt.Sprintf("nav-%d", int64(id))
}

// Package handler implements the single-threaded event loop that drives a
// Chromium-family browser over its remote debugging protocol.
//
// A Handler owns one Transport (a duplex, JSON-framed byte stream, typically
// a WebSocket to the browser's remote debugging endpoint) and multiplexes an
// arbitrary number of per-target sessions over it. It demultiplexes inbound
// traffic into command responses (correlated by CallID) and events
// (correlated by SessionID), drives each Target through its initialization
// state machine, and exposes the result through message-passing channels to
// user-facing Page handles.
//
// Launching the browser process, the transport's framing implementation, and
// the generated protocol parameter/return types are outside this package's
// concerns; Request and Response carry params/result as raw JSON.
package handler

package handler

import "log/slog"

// logEvent logs one demultiplexed inbound event at debug level: high
// volume, rarely interesting outside of protocol-level debugging.
func logEvent(l *slog.Logger, ev Event) {
	l.Debug("event", "method", ev.Method, "sessionId", string(ev.SessionID))
}

// logDispatch logs one outbound call at debug level.
func logDispatch(l *slog.Logger, id CallID, req Request) {
	l.Debug("dispatch", "id", id, "method", req.Method, "sessionId", string(req.SessionID))
}

// logDropped logs an inbound frame that ParseMessage rejected, or a
// response/event that could not be routed to a known waiter or target. Per
// the error taxonomy these are tolerated, not fatal, but worth surfacing.
func logDropped(l *slog.Logger, reason string, args ...any) {
	l.Warn(reason, args...)
}

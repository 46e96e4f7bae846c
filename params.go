package handler

import "encoding/json"

// mustParams marshals a static, compile-time-known parameter value for a
// protocol call. It panics on error, which can only happen if v's type is
// not marshalable — a programmer error, not a runtime condition.
func mustParams(v interface{}) json.RawMessage {
	buf, err := json.Marshal(v)
	if err != nil {
		panic("handler: static params failed to marshal: " + err.Error())
	}
	return buf
}

var emptyParams = json.RawMessage(`{}`)

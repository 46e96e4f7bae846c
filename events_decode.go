package handler

import "encoding/json"

// decodeParams unmarshals an event's params into v, reporting success. A
// malformed params payload is tolerated: the caller skips the update rather
// than treating one bad event as fatal to the whole pass.
func decodeParams(params json.RawMessage, v interface{}) bool {
	if len(params) == 0 {
		return false
	}
	return json.Unmarshal(params, v) == nil
}

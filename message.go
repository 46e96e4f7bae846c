package handler

import (
	"encoding/json"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Request is a protocol call before it has been assigned a CallID. SessionID
// is empty for browser-level calls (e.g. Target.attachToTarget) and set for
// calls routed to a specific target.
type Request struct {
	Method    string
	Params    json.RawMessage
	SessionID SessionID
}

// ProtocolError is the verbatim {code, message} the browser returns in place
// of a result. It satisfies error and is propagated to the waiter unchanged,
// per the error taxonomy.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error satisfies the error interface.
func (e *ProtocolError) Error() string {
	return e.Message
}

// MethodCall is a Request after it has been assigned a CallID; this is the
// shape written to the wire.
type MethodCall struct {
	ID        CallID          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID SessionID       `json:"sessionId,omitempty"`
}

// NewMethodCall assigns id to req, producing the wire-ready call.
func NewMethodCall(id CallID, req Request) MethodCall {
	return MethodCall{
		ID:        id,
		Method:    req.Method,
		Params:    req.Params,
		SessionID: req.SessionID,
	}
}

// MarshalEasyJSON satisfies easyjson.Marshaler, avoiding a reflection-based
// encode on the hot dispatch path.
func (m MethodCall) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"id":`)
	w.Int64(int64(m.ID))
	w.RawString(`,"method":`)
	w.String(m.Method)
	if len(m.Params) > 0 {
		w.RawString(`,"params":`)
		w.Raw(m.Params, nil)
	}
	if m.SessionID != "" {
		w.RawString(`,"sessionId":`)
		w.String(string(m.SessionID))
	}
	w.RawByte('}')
}

// MarshalJSON satisfies json.Marshaler in terms of MarshalEasyJSON.
func (m MethodCall) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(m)
}

// Response is the browser's reply to one MethodCall. Exactly one of Result
// and Error is non-nil.
type Response struct {
	ID     CallID
	Result json.RawMessage
	Error  *ProtocolError
}

// Event is an inbound notification not correlated to any CallID. SessionID
// is empty for browser-wide events.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID SessionID
}

// Domain returns the portion of the method name before the first '.', used
// to route the event to the owning sub-manager.
func (e Event) Domain() string {
	for i := 0; i < len(e.Method); i++ {
		if e.Method[i] == '.' {
			return e.Method[:i]
		}
	}
	return e.Method
}

// inboundEnvelope is the union wire shape of a Response or an Event. A
// pointer ID field, rather than CallID's own zero value, is what lets
// ParseMessage tell "id present" apart from "id omitted" (an explicit id of 0
// is still a well-formed response id on the wire, even though the Handler
// allocates ids starting at 1).
type inboundEnvelope struct {
	ID        *int64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ProtocolError  `json:"error,omitempty"`
	SessionID SessionID       `json:"sessionId,omitempty"`
}

// UnmarshalEasyJSON satisfies easyjson.Unmarshaler.
func (e *inboundEnvelope) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeString()
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			v := in.Int64()
			e.ID = &v
		case "method":
			e.Method = in.String()
		case "params":
			e.Params = append(json.RawMessage{}, in.Raw()...)
		case "result":
			e.Result = append(json.RawMessage{}, in.Raw()...)
		case "error":
			e.Error = new(ProtocolError)
			in.Delim('{')
			for !in.IsDelim('}') {
				ek := in.UnsafeString()
				in.WantColon()
				switch ek {
				case "code":
					e.Error.Code = in.Int()
				case "message":
					e.Error.Message = in.String()
				default:
					in.SkipRecursive()
				}
				in.WantComma()
			}
			in.Delim('}')
		case "sessionId":
			e.SessionID = SessionID(in.String())
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// UnmarshalJSON satisfies json.Unmarshaler in terms of UnmarshalEasyJSON.
func (e *inboundEnvelope) UnmarshalJSON(data []byte) error {
	return easyjson.Unmarshal(data, e)
}

// ParseMessage disambiguates one inbound frame into a Response or an Event,
// per the "presence of id" rule. Exactly one return value (besides err) is
// non-nil on success.
func ParseMessage(data []byte) (*Response, *Event, error) {
	var env inboundEnvelope
	if err := easyjson.Unmarshal(data, &env); err != nil {
		return nil, nil, err
	}

	if env.ID != nil {
		return &Response{
			ID:     CallID(*env.ID),
			Result: env.Result,
			Error:  env.Error,
		}, nil, nil
	}
	if env.Method != "" {
		return nil, &Event{
			Method:    env.Method,
			Params:    env.Params,
			SessionID: env.SessionID,
		}, nil
	}
	return nil, nil, ErrMalformedMessage
}

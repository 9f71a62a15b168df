// Package transport demultiplexes inbound client frames by action and
// returns a correlated response for every request.
package transport

import (
	"encoding/json"

	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/apperr"
	"murmur/internal/registry"
)

// Frame is one inbound client request.
type Frame struct {
	TransactionID string          `json:"transactionID,omitempty"`
	Action        string          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Response is the correlated reply to a Frame.
type Response struct {
	TransactionID string      `json:"transactionID,omitempty"`
	Status        string      `json:"status"`
	Code          int         `json:"code"`
	Payload       interface{} `json:"payload,omitempty"`
}

// Context is what a handler sees: the payload, the originating
// session, and an accessor back to the registry.
type Context struct {
	Session  *Session
	Registry *registry.Registry
	payload  json.RawMessage
}

// Bind unmarshals the frame payload into v.
func (c *Context) Bind(v interface{}) error {
	if err := json.Unmarshal(c.payload, v); err != nil {
		return apperr.Newf(apperr.Validation, "bad payload: %v", err)
	}
	return nil
}

// UserID returns the user bound to the session, empty before
// authentication.
func (c *Context) UserID() string {
	return c.Session.UserID()
}

// HandlerFunc handles one action. A nil result is sent as a bare
// success.
type HandlerFunc func(ctx *Context) (interface{}, error)

// Router dispatches frames to registered handlers.
type Router struct {
	registry *registry.Registry
	handlers map[string]HandlerFunc
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{
		registry: reg,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for an action name.
func (r *Router) Handle(action string, h HandlerFunc) {
	r.handlers[action] = h
}

// Dispatch routes one raw frame and returns the serialized response.
// Malformed JSON fails before any handler runs; an unknown action is
// rejected as not acceptable.
func (r *Router) Dispatch(sess *Session, raw []byte) []byte {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return marshalResponse(failure("",
			apperr.New(apperr.MalformedMessage, "frame is not valid JSON")))
	}
	if frame.Action == "" {
		return marshalResponse(failure(frame.TransactionID,
			apperr.New(apperr.MalformedMessage, "frame has no action")))
	}

	h, ok := r.handlers[frame.Action]
	if !ok {
		return marshalResponse(failure(frame.TransactionID,
			apperr.Newf(apperr.NotAcceptable, "unknown action %q", frame.Action)))
	}

	ctx := &Context{Session: sess, Registry: r.registry, payload: frame.Payload}
	result, err := r.invoke(frame.Action, h, ctx)
	if err != nil {
		jww.DEBUG.Printf("transport: action %s failed: %v", frame.Action, err)
		return marshalResponse(failure(frame.TransactionID, err))
	}
	return marshalResponse(Response{
		TransactionID: frame.TransactionID,
		Status:        "SUCCESS",
		Code:          200,
		Payload:       result,
	})
}

func (r *Router) invoke(action string, h HandlerFunc, ctx *Context) (
	result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			jww.ERROR.Printf("transport: handler %s panicked: %v", action, p)
			err = apperr.Newf(apperr.Internal, "handler %s failed", action)
		}
	}()
	return h(ctx)
}

func failure(transactionID string, err error) Response {
	return Response{
		TransactionID: transactionID,
		Status:        string(apperr.KindOf(err)),
		Code:          apperr.CodeOf(err),
	}
}

func marshalResponse(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		jww.ERROR.Printf("transport: response marshal failed: %v", err)
		data, _ = json.Marshal(failure(resp.TransactionID,
			apperr.New(apperr.Internal, "")))
	}
	return data
}

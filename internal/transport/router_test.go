package transport

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"murmur/internal/apperr"
	"murmur/internal/registry"
)

func testSession(id string) *Session {
	return &Session{id: id, alive: true}
}

func dispatch(t *testing.T, r *Router, sess *Session, raw string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(r.Dispatch(sess, []byte(raw)), &resp))
	return resp
}

func TestDispatchMalformedFrame(t *testing.T) {
	r := NewRouter(registry.New())

	resp := dispatch(t, r, testSession("s1"), "{not json")
	require.Equal(t, string(apperr.MalformedMessage), resp.Status)
	require.Equal(t, 400, resp.Code)
	require.Empty(t, resp.TransactionID)

	// valid JSON but no action is malformed too
	resp = dispatch(t, r, testSession("s1"), `{"transactionID":"t1"}`)
	require.Equal(t, string(apperr.MalformedMessage), resp.Status)
	require.Equal(t, "t1", resp.TransactionID)
}

func TestDispatchUnknownAction(t *testing.T) {
	r := NewRouter(registry.New())

	resp := dispatch(t, r, testSession("s1"),
		`{"transactionID":"t2","action":"nope"}`)
	require.Equal(t, string(apperr.NotAcceptable), resp.Status)
	require.Equal(t, 406, resp.Code)
	require.Equal(t, "t2", resp.TransactionID)
}

func TestDispatchSuccess(t *testing.T) {
	r := NewRouter(registry.New())
	r.Handle("echo", func(ctx *Context) (interface{}, error) {
		var s string
		if err := ctx.Bind(&s); err != nil {
			return nil, err
		}
		return map[string]string{"echo": s}, nil
	})

	resp := dispatch(t, r, testSession("s1"),
		`{"transactionID":"t3","action":"echo","payload":"hello"}`)
	require.Equal(t, "SUCCESS", resp.Status)
	require.Equal(t, 200, resp.Code)
	require.Equal(t, "t3", resp.TransactionID)
	require.Equal(t, map[string]interface{}{"echo": "hello"}, resp.Payload)
}

func TestDispatchErrorMapping(t *testing.T) {
	r := NewRouter(registry.New())
	r.Handle("missing", func(*Context) (interface{}, error) {
		return nil, apperr.New(apperr.NotFound, "no such thing")
	})
	r.Handle("boom", func(*Context) (interface{}, error) {
		return nil, errors.New("some internal detail")
	})

	resp := dispatch(t, r, testSession("s1"), `{"action":"missing"}`)
	require.Equal(t, string(apperr.NotFound), resp.Status)
	require.Equal(t, 404, resp.Code)
	require.Nil(t, resp.Payload, "error responses carry no payload")

	// unknown error types degrade to the generic status
	resp = dispatch(t, r, testSession("s1"), `{"action":"boom"}`)
	require.Equal(t, string(apperr.Generic), resp.Status)
	require.Equal(t, 400, resp.Code)
}

func TestDispatchPanicRecovery(t *testing.T) {
	r := NewRouter(registry.New())
	r.Handle("panic", func(*Context) (interface{}, error) {
		panic("handler bug")
	})

	resp := dispatch(t, r, testSession("s1"),
		`{"transactionID":"t4","action":"panic"}`)
	require.Equal(t, string(apperr.Internal), resp.Status)
	require.Equal(t, 500, resp.Code)
	require.Equal(t, "t4", resp.TransactionID)
}

package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const controlWriteWait = 5 * time.Second

// Session wraps one websocket connection. It satisfies
// registry.Session; the pong handler keeps the alive flag fresh for
// the heartbeat sweep.
type Session struct {
	id   string
	conn *websocket.Conn

	writeMux sync.Mutex

	mux    sync.RWMutex
	alive  bool
	userID string
}

// NewSession wraps conn with a locally-unique connection identifier.
func NewSession(conn *websocket.Conn) *Session {
	s := &Session{
		id:    uuid.NewString(),
		conn:  conn,
		alive: true,
	}
	conn.SetPongHandler(func(string) error {
		s.SetAlive(true)
		return nil
	})
	return s
}

func (s *Session) ID() string { return s.id }

// Send writes one text frame. Serialized by a write mutex because the
// broker and the read loop's responses share the connection.
func (s *Session) Send(data []byte) error {
	s.writeMux.Lock()
	defer s.writeMux.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame. Control frames may be written
// concurrently with Send.
func (s *Session) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil,
		time.Now().Add(controlWriteWait))
}

func (s *Session) Close() error { return s.conn.Close() }

func (s *Session) Alive() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.alive
}

func (s *Session) SetAlive(alive bool) {
	s.mux.Lock()
	s.alive = alive
	s.mux.Unlock()
}

// BindUser ties the session to an authenticated user.
func (s *Session) BindUser(userID string) {
	s.mux.Lock()
	s.userID = userID
	s.mux.Unlock()
}

// UserID returns the bound user, empty before authentication.
func (s *Session) UserID() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.userID
}

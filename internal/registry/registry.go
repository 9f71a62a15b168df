// Package registry tracks which users currently hold live transport
// sessions. It is process-local mutable state; there is no persisted
// session table, and the heartbeat sweep is the only liveness
// mechanism.
package registry

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// DefaultHeartbeatInterval is how often dead sessions are swept.
const DefaultHeartbeatInterval = 10 * time.Second

// Session is one live transport connection bound to a user. Alive is
// toggled by the ping/pong round-trip: the sweeper clears it before
// pinging and the transport sets it again on pong.
type Session interface {
	ID() string
	Send(data []byte) error
	Close() error
	Ping() error
	Alive() bool
	SetAlive(alive bool)
}

// Registry maps user ids to their live sessions. A user may hold any
// number of concurrent sessions (multi-device).
type Registry struct {
	mux      sync.RWMutex
	sessions map[string]map[string]Session // userID -> session id -> session
	owners   map[string]string             // session id -> userID
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]Session),
		owners:   make(map[string]string),
	}
}

// Register adds a session under userID. Existing sessions of the same
// user are untouched.
func (r *Registry) Register(s Session, userID string) {
	r.mux.Lock()
	defer r.mux.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]Session)
		r.sessions[userID] = set
	}
	set[s.ID()] = s
	r.owners[s.ID()] = userID
	jww.DEBUG.Printf("registry: session %s bound to user %s (%d live)",
		s.ID(), userID, len(set))
}

// Detach removes the session from its owner's set, pruning the owner
// entirely when no sessions remain. Detaching an unregistered session
// is a no-op.
func (r *Registry) Detach(s Session) {
	r.mux.Lock()
	defer r.mux.Unlock()

	userID, ok := r.owners[s.ID()]
	if !ok {
		return
	}
	delete(r.owners, s.ID())
	set := r.sessions[userID]
	delete(set, s.ID())
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
	jww.DEBUG.Printf("registry: session %s detached from user %s", s.ID(), userID)
}

// HasSession reports whether userID holds at least one live session.
func (r *Registry) HasSession(userID string) bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Send writes data to every live session of every target user,
// silently skipping offline targets. A session that fails the write is
// detached and closed.
func (r *Registry) Send(data []byte, targets []string) {
	r.mux.RLock()
	var out []Session
	for _, userID := range targets {
		for _, s := range r.sessions[userID] {
			out = append(out, s)
		}
	}
	r.mux.RUnlock()

	for _, s := range out {
		if err := s.Send(data); err != nil {
			jww.WARN.Printf("registry: dropping session %s: %v", s.ID(), err)
			r.Detach(s)
			s.Close()
		}
	}
}

// StartHeartbeat launches the liveness sweeper and returns a stop
// function. Each sweep detaches and closes every session that did not
// answer the previous sweep's ping, then pings the survivors.
func (r *Registry) StartHeartbeat(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}

func (r *Registry) sweep() {
	// snapshot before touching any session so a detach cannot race the
	// iteration
	r.mux.RLock()
	var all []Session
	for _, set := range r.sessions {
		for _, s := range set {
			all = append(all, s)
		}
	}
	r.mux.RUnlock()

	for _, s := range all {
		if !s.Alive() {
			jww.INFO.Printf("registry: evicting unresponsive session %s", s.ID())
			r.Detach(s)
			s.Close()
			continue
		}
		s.SetAlive(false)
		if err := s.Ping(); err != nil {
			jww.INFO.Printf("registry: ping failed for session %s: %v", s.ID(), err)
			r.Detach(s)
			s.Close()
		}
	}
}

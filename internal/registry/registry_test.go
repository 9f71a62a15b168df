package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSession implements Session in memory.
type fakeSession struct {
	id string

	mux      sync.Mutex
	alive    bool
	closed   bool
	pings    int
	sent     [][]byte
	sendErr  error
	autoPong bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, alive: true, autoPong: true}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(data []byte) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSession) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.closed = true
	return nil
}

// Ping answers its own pong when autoPong is set, mimicking a healthy
// client.
func (s *fakeSession) Ping() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.pings++
	if s.autoPong {
		s.alive = true
	}
	return nil
}

func (s *fakeSession) Alive() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.alive
}

func (s *fakeSession) SetAlive(alive bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.alive = alive
}

func (s *fakeSession) isClosed() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.closed
}

func (s *fakeSession) sentCount() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.sent)
}

func TestRegisterAndDetach(t *testing.T) {
	r := New()
	phone := newFakeSession("phone")
	laptop := newFakeSession("laptop")

	require.False(t, r.HasSession("alice"))

	// multiple devices coexist under one user
	r.Register(phone, "alice")
	r.Register(laptop, "alice")
	require.True(t, r.HasSession("alice"))

	r.Detach(phone)
	require.True(t, r.HasSession("alice"))

	r.Detach(laptop)
	require.False(t, r.HasSession("alice"))

	// detaching an unknown session is a no-op
	r.Detach(phone)
}

func TestSendTargetsEveryLiveSession(t *testing.T) {
	r := New()
	phone := newFakeSession("phone")
	laptop := newFakeSession("laptop")
	bobs := newFakeSession("bobs")
	r.Register(phone, "alice")
	r.Register(laptop, "alice")
	r.Register(bobs, "bob")

	r.Send([]byte("hello"), []string{"alice", "carol"})

	require.Equal(t, 1, phone.sentCount())
	require.Equal(t, 1, laptop.sentCount())
	require.Equal(t, 0, bobs.sentCount(), "untargeted user gets nothing")
}

func TestSendDropsFailingSession(t *testing.T) {
	r := New()
	broken := newFakeSession("broken")
	broken.sendErr = errors.New("pipe closed")
	r.Register(broken, "alice")

	r.Send([]byte("hello"), []string{"alice"})

	require.False(t, r.HasSession("alice"))
	require.True(t, broken.isClosed())
}

func TestHeartbeatEvictsUnresponsiveSession(t *testing.T) {
	r := New()
	healthy := newFakeSession("healthy")
	dead := newFakeSession("dead")
	dead.autoPong = false
	r.Register(healthy, "alice")
	r.Register(dead, "bob")

	stop := r.StartHeartbeat(10 * time.Millisecond)
	defer stop()

	// first sweep clears alive and pings; the dead session never pongs
	// and is evicted on the second sweep
	require.Eventually(t, func() bool {
		return !r.HasSession("bob")
	}, time.Second, 5*time.Millisecond)

	require.True(t, dead.isClosed())
	require.True(t, r.HasSession("alice"),
		"responsive session survives the sweeps")
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	r := New()
	stop := r.StartHeartbeat(time.Millisecond)
	stop()
	stop()
}

package transport

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"murmur/internal/registry"
)

// Server upgrades HTTP requests to websocket sessions and runs their
// read loops.
type Server struct {
	router   *Router
	registry *registry.Registry
	upgrader websocket.Upgrader
}

// NewServer builds the websocket endpoint. Upgrades are refused for
// origins outside allowedOrigins.
func NewServer(router *Router, reg *registry.Registry,
	allowedOrigins []string) *Server {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &Server{
		router:   router,
		registry: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// Routes returns the HTTP router exposing /ws and /healthz.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		jww.WARN.Printf("transport: websocket upgrade failed: %v", err)
		return
	}
	sess := NewSession(conn)
	jww.INFO.Printf("transport: session %s connected from %s", sess.ID(),
		r.RemoteAddr)
	go s.readLoop(sess)
}

// readLoop drives one session until the connection drops. The session
// only leaves the registry here or through the heartbeat sweep.
func (s *Server) readLoop(sess *Session) {
	defer func() {
		s.registry.Detach(sess)
		sess.Close()
		jww.INFO.Printf("transport: session %s disconnected", sess.ID())
	}()

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.router.Dispatch(sess, raw)
		if err := sess.Send(resp); err != nil {
			return
		}
	}
}

package main

import (
	"net/http"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"murmur/internal/apperr"
	"murmur/internal/attach"
	"murmur/internal/broker"
	"murmur/internal/chatsync"
	"murmur/internal/config"
	"murmur/internal/kvstore"
	"murmur/internal/presence"
	"murmur/internal/registry"
	"murmur/internal/store"
	"murmur/internal/transport"
)

// tokenAuth is the development authenticator: tokens look like
// "dev:<userID>". Deployments plug a real verifier into
// transport.CoreActions.
type tokenAuth struct{}

func (tokenAuth) Authenticate(token string) (string, error) {
	userID, ok := strings.CutPrefix(token, "dev:")
	if !ok || userID == "" {
		return "", apperr.New(apperr.Forbidden, "invalid access token")
	}
	return userID, nil
}

func logThreshold(level string) jww.Threshold {
	switch strings.ToLower(level) {
	case "trace":
		return jww.LevelTrace
	case "debug":
		return jww.LevelDebug
	case "warn":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	default:
		return jww.LevelInfo
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		jww.DEBUG.Printf("no .env file, using environment: %v", err)
	}
	cfg := config.Load()
	jww.SetStdoutThreshold(logThreshold(cfg.LogLevel))

	var db kvstore.Store
	if cfg.DBHost == "" {
		jww.WARN.Printf("DB_HOST not set, running on the in-memory store")
		db = kvstore.NewMemory()
	} else {
		var err error
		db, err = kvstore.NewMySQL(cfg.DSN())
		if err != nil {
			jww.FATAL.Fatalf("failed to initialize store: %v", err)
		}
	}
	defer db.Close()

	stores := store.NewBundle(db)
	reg := registry.New()
	events := broker.New(reg)
	service := chatsync.New(stores, attach.Discard{}, events, nil)
	typing := presence.New(ekv.MakeMemstore(), cfg.TypingTTL)

	router := transport.NewRouter(reg)
	core := &transport.CoreActions{
		Auth:          tokenAuth{},
		Typing:        typing,
		Conversations: stores.Conversations,
		Events:        events,
	}
	core.Register(router)
	syncActions := &transport.SyncActions{Service: service}
	syncActions.Register(router)

	stopHeartbeat := reg.StartHeartbeat(cfg.HeartbeatInterval)
	defer stopHeartbeat()

	server := transport.NewServer(router, reg, cfg.AllowedOrigins)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	httpHandler := c.Handler(server.Routes())

	jww.INFO.Printf("environment: %s", cfg.Env)
	jww.INFO.Printf("websocket: ws://localhost:%s/ws", cfg.ServerPort)
	jww.INFO.Printf("allowed origins: %v", cfg.AllowedOrigins)
	jww.INFO.Printf("server started on :%s", cfg.ServerPort)
	jww.FATAL.Fatal(http.ListenAndServe(":"+cfg.ServerPort, httpHandler))
}

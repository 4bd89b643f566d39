package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chirino/cryptochat-server/internal/config"
	"github.com/chirino/cryptochat-server/internal/plugin/route/chats"
	"github.com/chirino/cryptochat-server/internal/plugin/route/contacts"
	"github.com/chirino/cryptochat-server/internal/plugin/route/messages"
	"github.com/chirino/cryptochat-server/internal/plugin/route/system"
	"github.com/chirino/cryptochat-server/internal/plugin/route/users"
	storemetrics "github.com/chirino/cryptochat-server/internal/plugin/store/metrics"
	registrymigrate "github.com/chirino/cryptochat-server/internal/registry/migrate"
	registryroute "github.com/chirino/cryptochat-server/internal/registry/route"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/chirino/cryptochat-server/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server state so tests and the run loop can
// inspect and stop it.
type Server struct {
	Config *config.Config
	Store  registrystore.ChatStore
	Router *gin.Engine

	// Port the main listener is bound to. Useful when the configured
	// port was 0.
	Port int

	httpServer       *http.Server
	managementServer *http.Server
}

// StartServer assembles and starts the HTTP server(s) described by cfg.
// It returns once the listeners are accepting connections.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting cryptochat server", "version", cfg.Version, "datastore", cfg.DatastoreType)

	labels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics labels: %w", err)
	}
	security.InitMetrics(labels)

	ctx = config.WithContext(ctx, cfg)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	chatStore, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}
	chatStore = storemetrics.Wrap(chatStore)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	skipPaths := []string{"/health", "/ready", "/metrics"}
	if cfg.ManagementAccessLog || cfg.ManagementListenerEnabled {
		skipPaths = nil
	}
	router.Use(security.AccessLogMiddleware(skipPaths...))
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	system.SetVersion(cfg.Version)

	for _, load := range registryroute.Loaders(registryroute.RouteTypeMain) {
		if err := load(router); err != nil {
			return nil, err
		}
	}
	users.MountRoutes(router, chatStore)
	chats.MountRoutes(router, chatStore)
	messages.MountRoutes(router, chatStore)
	contacts.MountRoutes(router, chatStore)

	srv := &Server{
		Config: cfg,
		Store:  chatStore,
		Router: router,
	}

	if cfg.ManagementListenerEnabled {
		if err := srv.startManagement(cfg); err != nil {
			return nil, err
		}
	} else {
		for _, load := range registryroute.Loaders(registryroute.RouteTypeManagement) {
			if err := load(router); err != nil {
				return nil, err
			}
		}
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	srv.Port = listener.Addr().(*net.TCPAddr).Port

	srv.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := srv.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "err", err)
		}
	}()

	system.MarkReady()
	log.Info("Listening for HTTP requests", "port", srv.Port)
	return srv, nil
}

func (s *Server) startManagement(cfg *config.Config) error {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	}
	for _, load := range registryroute.Loaders(registryroute.RouteTypeManagement) {
		if err := load(router); err != nil {
			return err
		}
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.ManagementListener.Port))
	if err != nil {
		return fmt.Errorf("management listen: %w", err)
	}

	s.managementServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.ManagementListener.ReadHeaderTimeout,
	}
	go func() {
		if err := s.managementServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("Management server error", "err", err)
		}
	}()
	log.Info("Listening for management requests", "port", listener.Addr().(*net.TCPAddr).Port)
	return nil
}

// Shutdown gracefully drains the server(s).
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if s.managementServer != nil {
		if err := s.managementServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

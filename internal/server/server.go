package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/schoolhub/apiserver/config"
	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/db"
	"github.com/schoolhub/apiserver/internal/handlers"
	"github.com/schoolhub/apiserver/internal/metrics"
	"github.com/schoolhub/apiserver/internal/mq"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/internal/storage"
	"github.com/schoolhub/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
}

// Deps are the collaborators the router is built from. Documents may be
// nil, in which case document routes are not mounted.
type Deps struct {
	Users      *services.UserService
	Branches   *services.BranchService
	Documents  *services.DocumentService
	Codec      *auth.TokenCodec
	Transport  auth.Transport
	Authorizer *auth.Authorizer
	Metrics    *metrics.Metrics
}

// New opens every configured backend and constructs a Server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		closeAll(dbConn, broker)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var userOpts []services.UserServiceOption
	if broker != nil {
		userOpts = append(userOpts, services.WithEventPublisher(broker))
	}
	userService := services.NewUserService(store.NewUserRepository(dbConn), userOpts...)
	branchService := services.NewBranchService(store.NewBranchRepository(dbConn))

	var documentService *services.DocumentService
	if objects != nil {
		documentService = services.NewDocumentService(objects)
	}

	m := metrics.New()
	router := NewRouter(Deps{
		Users:      userService,
		Branches:   branchService,
		Documents:  documentService,
		Codec:      codec,
		Transport:  auth.NewTransport(cfg.Auth.CookieName, cfg.Auth.SecureCookie),
		Authorizer: auth.NewAuthorizer(log.Default(), m.ObserveBranchDecision),
		Metrics:    m,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      otelhttp.NewHandler(router, cfg.Telemetry.ServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
	}, nil
}

// NewRouter builds the chi router with middleware and every route.
func NewRouter(d Deps) *chi.Mux {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Authorizer == nil {
		d.Authorizer = auth.NewAuthorizer(log.Default(), d.Metrics.ObserveBranchDecision)
	}

	authenticator := auth.NewAuthenticator(d.Transport.Extractor(), d.Codec, d.Users)
	authMiddleware := handlers.RequireAuth(authenticator, d.Metrics.ObserveAuthentication)

	authHandler := handlers.NewAuthHandler(d.Users, d.Codec, d.Transport, d.Metrics.ObserveLogin)
	branchHandler := handlers.NewBranchHandler(d.Branches, d.Users, d.Authorizer)
	var documentHandler *handlers.DocumentHandler
	if d.Documents != nil {
		documentHandler = handlers.NewDocumentHandler(d.Documents, d.Branches, d.Authorizer)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", d.Metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware)
	})
	router.Route("/branches", func(r chi.Router) {
		handlers.BranchRouter(r, branchHandler, documentHandler, authMiddleware)
	})
	router.Route("/schools", func(r chi.Router) {
		handlers.SchoolRouter(r, branchHandler, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, branchHandler, authMiddleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	log.Printf("server listening addr=%s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	closeAll(s.db, s.mq)
	return err
}

func closeAll(dbConn *sql.DB, broker *mq.MQ) {
	if dbConn != nil {
		_ = dbConn.Close()
	}
	if broker != nil {
		_ = broker.Close()
	}
}

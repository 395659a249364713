package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mAmineChniti/Forklore/internal/access"
	"github.com/mAmineChniti/Forklore/internal/branch"
	"github.com/mAmineChniti/Forklore/internal/chapter"
	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/config"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/linkrequest"
	"github.com/mAmineChniti/Forklore/internal/novel"
	"github.com/mAmineChniti/Forklore/internal/purchase"
	"github.com/mAmineChniti/Forklore/internal/render"
	"github.com/mAmineChniti/Forklore/internal/subscription"
	"github.com/mAmineChniti/Forklore/internal/user"
	"github.com/mAmineChniti/Forklore/internal/vote"
	"go.uber.org/zap"
)

// Services are the domain services the HTTP layer routes to.
type Services struct {
	Novels        *novel.Service
	Branches      *branch.Manager
	Votes         *vote.Ledger
	LinkRequests  *linkrequest.Workflow
	Chapters      *chapter.Lifecycle
	Access        *access.Resolver
	Users         *user.Service
	Purchases     *purchase.Service
	Subscriptions *subscription.Service
}

// NewServices wires the domain services over one store.
func NewServices(db database.Service, clk clock.Clock, logger *zap.Logger, pub events.Publisher) Services {
	branches := branch.NewManager(db, clk, logger, pub)
	resolver := access.NewResolver(db, clk)
	return Services{
		Novels:        novel.NewService(db, branches, clk, logger),
		Branches:      branches,
		Votes:         vote.NewLedger(db, branches, clk, logger, pub),
		LinkRequests:  linkrequest.NewWorkflow(db, branches, clk, logger, pub),
		Chapters:      chapter.NewLifecycle(db, branches, resolver, render.NewMarkdown(), clk, logger, pub),
		Access:        resolver,
		Users:         user.NewService(db, clk),
		Purchases:     purchase.NewService(db, clk, logger, pub),
		Subscriptions: subscription.NewService(db, clk, logger, pub),
	}
}

type Server struct {
	port        int
	debug       bool
	serviceName string
	jwtSecret   []byte
	logger      *zap.Logger

	db  database.Service
	svc Services
}

func newServer(cfg *config.Config, db database.Service, svc Services, logger *zap.Logger) *Server {
	return &Server{
		port:        cfg.Port,
		debug:       cfg.Debug,
		serviceName: cfg.ServiceName,
		jwtSecret:   []byte(cfg.JWTSecret),
		logger:      logger.Named("http"),
		db:          db,
		svc:         svc,
	}
}

func NewServer(cfg *config.Config, db database.Service, svc Services, logger *zap.Logger) *http.Server {
	s := newServer(cfg, db, svc, logger)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

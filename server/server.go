// Package server exposes the governance and feed core over HTTP. The layer
// is deliberately thin: handlers parse, call one service, and map sentinel
// errors to status codes. Authentication is an upstream concern; the caller
// identity arrives in the X-Account-ID header set by the gateway.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/agents"
	"github.com/proxypost-social/proxypost/approvals"
	"github.com/proxypost-social/proxypost/engagement"
	"github.com/proxypost-social/proxypost/feed"
	"github.com/proxypost-social/proxypost/governor"
	"github.com/proxypost-social/proxypost/graph"
	"github.com/proxypost-social/proxypost/models"
	"github.com/proxypost-social/proxypost/quota"
)

type Config struct {
	MaxActionsPerDay  int
	ApprovalThreshold int
}

type Server struct {
	db         *gorm.DB
	echo       *echo.Echo
	httpd      *http.Server
	agents     *agents.Service
	governor   *governor.Governor
	approvals  *approvals.Manager
	graph      *graph.Graph
	feedgen    *feed.Generator
	engagement *engagement.Manager

	log *slog.Logger
}

const serverShutdownTimeout = 5 * time.Second

func NewServer(db *gorm.DB, gen governor.Generator, cfg Config) (*Server, error) {
	db.AutoMigrate(&models.User{})

	gate := &quota.Gate{MaxActionsPerDay: cfg.MaxActionsPerDay}
	agentsvc := agents.NewService(db, gate)

	s := &Server{
		db:         db,
		agents:     agentsvc,
		governor:   governor.NewGovernor(db, gate, gen, governor.Config{ApprovalThreshold: cfg.ApprovalThreshold}),
		approvals:  approvals.NewManager(db, agents.NoopPolicy{}),
		graph:      graph.NewGraph(db),
		engagement: engagement.NewManager(db),

		log: slog.Default().With("system", "server"),
	}
	s.feedgen = feed.NewGenerator(db, s.graph)

	return s, nil
}

func (s *Server) RunAPI(addr string) error {
	li, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.RunAPIWithListener(li)
}

func (s *Server) Router() *echo.Echo {
	e := echo.New()
	s.echo = e
	e.HideBanner = true
	e.Use(slogecho.New(s.log))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("proxypost"))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.handleHealthCheck)
	e.GET("/metrics", echoprometheus.NewHandler())

	api := e.Group("/api", s.requireAccount)

	api.POST("/agents", s.handleCreateAgent)
	api.GET("/agents/me", s.handleGetAgent)
	api.PUT("/agents/me", s.handleUpdateAgent)
	api.GET("/agents/me/dashboard", s.handleAgentDashboard)
	api.POST("/agents/me/propose", s.handlePropose)
	api.GET("/agents/me/actions", s.handleListActions)
	api.POST("/agents/me/actions/:id/approve", s.handleApproveAction)
	api.POST("/agents/me/actions/:id/reject", s.handleRejectAction)
	api.PUT("/agents/me/actions/:id", s.handleEditAction)
	api.DELETE("/agents/me/actions/:id", s.handleDeleteAction)

	api.GET("/connections", s.handleListConnections)
	api.POST("/connections/:id", s.handleRequestConnection)
	api.PUT("/connections/:id/accept", s.handleAcceptConnection)
	api.PUT("/connections/:id/reject", s.handleRejectConnection)
	api.PUT("/connections/:id/type", s.handleUpdateConnectionKind)
	api.DELETE("/connections/:id", s.handleRemoveConnection)

	api.GET("/feed", s.handlePersonalizedFeed)
	api.GET("/feed/global", s.handleGlobalFeed)
	api.GET("/feed/user/:userID", s.handleUserFeed)

	api.POST("/posts", s.handleCreatePost)
	api.GET("/posts", s.handleListOwnPosts)
	api.GET("/posts/:id", s.handleGetPost)
	api.PUT("/posts/:id", s.handleUpdatePost)
	api.DELETE("/posts/:id", s.handleDeletePost)
	api.POST("/posts/:id/like", s.handleLikePost)
	api.DELETE("/posts/:id/like", s.handleUnlikePost)
	api.GET("/posts/:id/like/status", s.handleLikeStatus)
	api.POST("/posts/:id/comments", s.handleCreateComment)
	api.GET("/posts/:id/comments", s.handleListComments)

	return e
}

func (s *Server) RunAPIWithListener(listen net.Listener) error {
	e := s.Router()

	s.httpd = &http.Server{
		Handler:        e,
		ReadTimeout:    time.Minute,
		WriteTimeout:   time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	s.log.Info("starting server", "addr", listen.Addr().String())
	return s.httpd.Serve(listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpd == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, serverShutdownTimeout)
	defer cancel()
	return s.httpd.Shutdown(ctx)
}

type httpError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorHandler maps the core error taxonomy onto caller-visible status
// codes. Quota exhaustion and generator failures are retry-later, not fatal.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	label := "InternalError"

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		label = http.StatusText(code)
	case errors.Is(err, models.ErrNotFound):
		code, label = http.StatusNotFound, "NotFound"
	case errors.Is(err, models.ErrForbidden):
		code, label = http.StatusForbidden, "Forbidden"
	case errors.Is(err, models.ErrRateLimitExceeded):
		code, label = http.StatusTooManyRequests, "RateLimitExceeded"
	case errors.Is(err, models.ErrAgentInactive):
		code, label = http.StatusConflict, "AgentInactive"
	case errors.Is(err, models.ErrInvalidState):
		code, label = http.StatusBadRequest, "InvalidState"
	case errors.Is(err, models.ErrAgentExists):
		code, label = http.StatusBadRequest, "AgentExists"
	case errors.Is(err, models.ErrSelfConnection):
		code, label = http.StatusBadRequest, "SelfConnection"
	case errors.Is(err, models.ErrDuplicateConnection):
		code, label = http.StatusBadRequest, "DuplicateConnection"
	case errors.Is(err, models.ErrDuplicateLike):
		code, label = http.StatusBadRequest, "DuplicateLike"
	case errors.Is(err, models.ErrGenerationFailed):
		code, label = http.StatusBadGateway, "GenerationFailed"
	}

	if code >= 500 {
		s.log.Error("handler error", "path", c.Path(), "err", err)
	}

	c.JSON(code, httpError{Error: label, Message: err.Error()})
}

// requireAccount resolves the caller identity set by the auth gateway.
func (s *Server) requireAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get("X-Account-ID")
		uid, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || uid == 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid account identity")
		}
		c.Set("uid", uint(uid))
		return next(c)
	}
}

func requester(c echo.Context) uint {
	uid, _ := c.Get("uid").(uint)
	return uid
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

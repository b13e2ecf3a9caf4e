// Package api exposes the agents over HTTP. Requests are queued to the same
// serial worker that serves the KQML transport.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/agent"
	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/middleware"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Submitter queues a request to an agent and waits for the reply content.
type Submitter interface {
	Name() string
	Submit(ctx context.Context, content *kqml.List) (kqml.Object, error)
}

// DiseaseLister lists the diseases the DTDA knows studies for.
type DiseaseLister interface {
	Diseases() []string
}

// RequestResponse is the body returned for an answered request.
type RequestResponse struct {
	RequestID string `json:"request_id"`
	Agent     string `json:"agent"`
	Reply     string `json:"reply"`
}

// ErrorResponse wraps an error reply.
type ErrorResponse struct {
	Error *domain.AgentError `json:"error"`
}

// Server represents the HTTP gateway
type Server struct {
	config   domain.GatewayConfig
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	agents   map[string]Submitter
	diseases DiseaseLister
	metrics  http.Handler
}

// Option configures optional gateway endpoints.
type Option func(*Server)

// WithMetrics serves handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) { s.metrics = handler }
}

// WithDiseases serves the disease list on /api/v1/dtda/diseases.
func WithDiseases(diseases DiseaseLister) Option {
	return func(s *Server) { s.diseases = diseases }
}

// NewServer creates a gateway in front of the given agents
func NewServer(config domain.GatewayConfig, logger *logrus.Logger, agents []Submitter, opts ...Option) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		config: config,
		logger: logger,
		router: router,
		agents: make(map[string]Submitter, len(agents)),
	}
	for _, a := range agents {
		s.agents[strings.ToLower(a.Name())] = a
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP gateway")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/:agent/request", s.handleRequest)
		if s.diseases != nil {
			v1.GET("/dtda/diseases", s.handleDiseases)
		}
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	names := make([]string, 0, len(s.agents))
	for _, a := range s.agents {
		names = append(names, a.Name())
	}
	sort.Strings(names)

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"agents":    names,
	})
}

// handleRequest queues a KQML request content to an agent
func (s *Server) handleRequest(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	target, ok := s.agents[strings.ToLower(c.Param("agent"))]
	if !ok {
		s.abort(c, http.StatusNotFound, domain.NewAgentError(domain.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown agent %s", c.Param("agent")), "", requestID))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		s.abort(c, http.StatusBadRequest, domain.NewAgentError(domain.ErrCodeInvalidRequest,
			"failed to read request body", err.Error(), requestID))
		return
	}
	content, err := kqml.ParseList(string(body))
	if err != nil {
		s.abort(c, http.StatusBadRequest, domain.NewAgentError(domain.ErrCodeInvalidRequest,
			"request body is not a KQML list", err.Error(), requestID))
		return
	}

	reply, err := target.Submit(c.Request.Context(), content)
	if err != nil {
		status, agentErr := classify(err, requestID)
		s.abort(c, status, agentErr)
		return
	}

	c.JSON(http.StatusOK, RequestResponse{
		RequestID: requestID,
		Agent:     target.Name(),
		Reply:     reply.String(),
	})
}

// handleDiseases lists the known disease names
func (s *Server) handleDiseases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"diseases": s.diseases.Diseases()})
}

func (s *Server) abort(c *gin.Context, status int, err *domain.AgentError) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err})
}

// classify maps a Submit error to an HTTP status and error body
func classify(err error, requestID string) (int, *domain.AgentError) {
	var agentErr *domain.AgentError
	switch {
	case errors.As(err, &agentErr):
		e := *agentErr
		e.RequestID = requestID
		return http.StatusBadRequest, &e
	case errors.Is(err, agent.ErrModuleStopped):
		return http.StatusServiceUnavailable, domain.NewAgentError(domain.ErrCodeInternal, err.Error(), "", requestID)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, domain.NewAgentError(domain.ErrCodeInternal, "request timed out", err.Error(), requestID)
	default:
		return http.StatusBadGateway, domain.NewAgentError(domain.ErrCodeExternalAPI, err.Error(), "", requestID)
	}
}

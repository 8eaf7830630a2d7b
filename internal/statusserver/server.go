// Package statusserver exposes the state of a running batch over HTTP.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	statusRoutePathConstant       = "/status"
	healthRoutePathConstant       = "/healthz"
	healthyStatusValueConstant    = "ok"
	networkTCPConstant            = "tcp"
	readHeaderTimeoutConstant     = 5 * time.Second
	listenErrorTemplateConstant   = "statusserver.listen: %w"
	shutdownErrorTemplateConstant = "statusserver.shutdown: %w"
	serverAlreadyStartedMessage   = "statusserver: already started"
	logMessageStatusServerStarted = "status_server_started"
	logMessageStatusServerFailed  = "status_server_failed"
	logMessageStatusRequestServed = "status_request_served"
	logFieldAddressConstant       = "address"
	logFieldPathConstant          = "path"
	logFieldStatusConstant        = "status"
	logFieldDurationConstant      = "duration"
)

// Options configures a Server.
type Options struct {
	Address       string
	RunIdentifier string
	Logger        *zap.Logger
	NowProvider   func() time.Time
}

// StatusResponse is the body served at /status.
type StatusResponse struct {
	RunIdentifier string              `json:"run_id"`
	StartedAt     time.Time           `json:"started_at"`
	Finished      bool                `json:"finished"`
	Cancelled     bool                `json:"cancelled"`
	Snapshot      taskrunner.Snapshot `json:"snapshot"`
	Summary       *taskrunner.Summary `json:"summary,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Server serves the latest batch snapshot. It implements progress.Sink.
type Server struct {
	address       string
	runIdentifier string
	startedAt     time.Time
	logger        *zap.Logger
	engine        *gin.Engine

	mutex      sync.RWMutex
	snapshot   taskrunner.Snapshot
	summary    *taskrunner.Summary
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}
}

// New constructs a Server. Call Start to begin listening.
func New(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := options.NowProvider
	if now == nil {
		now = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	server := &Server{
		address:       options.Address,
		runIdentifier: options.RunIdentifier,
		startedAt:     now().UTC(),
		logger:        logger,
		engine:        gin.New(),
	}
	server.engine.Use(gin.Recovery(), server.requestLogger())
	server.engine.GET(statusRoutePathConstant, server.handleStatus)
	server.engine.GET(healthRoutePathConstant, server.handleHealth)
	return server
}

// Handler returns the HTTP handler serving the status routes.
func (server *Server) Handler() http.Handler {
	return server.engine
}

// Render records the snapshot unless a more recent one is already stored.
func (server *Server) Render(snapshot taskrunner.Snapshot) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	if snapshot.Supersedes(server.snapshot) {
		server.snapshot = snapshot
	}
}

// Stop ends rendering. The listener keeps serving the last snapshot and the
// summary until Shutdown.
func (server *Server) Stop() {}

// Finish records the final summary of the batch.
func (server *Server) Finish(summary taskrunner.Summary) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	summaryCopy := summary
	server.summary = &summaryCopy
}

// Status returns the current status document.
func (server *Server) Status() StatusResponse {
	server.mutex.RLock()
	defer server.mutex.RUnlock()
	response := StatusResponse{
		RunIdentifier: server.runIdentifier,
		StartedAt:     server.startedAt,
		Snapshot:      server.snapshot,
		Summary:       server.summary,
	}
	if server.summary != nil {
		response.Finished = true
		response.Cancelled = server.summary.Cancelled
	}
	return response
}

// Start binds the listener and serves in the background.
func (server *Server) Start() error {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	if server.httpServer != nil {
		return errors.New(serverAlreadyStartedMessage)
	}

	listener, listenError := net.Listen(networkTCPConstant, server.address)
	if listenError != nil {
		return fmt.Errorf(listenErrorTemplateConstant, listenError)
	}

	server.listener = listener
	server.httpServer = &http.Server{Handler: server.engine, ReadHeaderTimeout: readHeaderTimeoutConstant}
	server.serveDone = make(chan struct{})

	httpServer := server.httpServer
	serveDone := server.serveDone
	go func() {
		defer close(serveDone)
		if serveError := httpServer.Serve(listener); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			server.logger.Warn(logMessageStatusServerFailed, zap.Error(serveError))
		}
	}()

	server.logger.Info(logMessageStatusServerStarted, zap.String(logFieldAddressConstant, listener.Addr().String()))
	return nil
}

// Address reports the bound address, or the configured one before Start.
func (server *Server) Address() string {
	server.mutex.RLock()
	defer server.mutex.RUnlock()
	if server.listener != nil {
		return server.listener.Addr().String()
	}
	return server.address
}

// Shutdown stops the server, waiting for in-flight requests until the context ends.
func (server *Server) Shutdown(shutdownContext context.Context) error {
	server.mutex.RLock()
	httpServer := server.httpServer
	serveDone := server.serveDone
	server.mutex.RUnlock()
	if httpServer == nil {
		return nil
	}

	if shutdownError := httpServer.Shutdown(shutdownContext); shutdownError != nil {
		return fmt.Errorf(shutdownErrorTemplateConstant, shutdownError)
	}
	<-serveDone
	return nil
}

func (server *Server) handleStatus(requestContext *gin.Context) {
	requestContext.JSON(http.StatusOK, server.Status())
}

func (server *Server) handleHealth(requestContext *gin.Context) {
	requestContext.JSON(http.StatusOK, healthResponse{Status: healthyStatusValueConstant})
}

func (server *Server) requestLogger() gin.HandlerFunc {
	return func(requestContext *gin.Context) {
		startedAt := time.Now()
		requestContext.Next()
		server.logger.Debug(
			logMessageStatusRequestServed,
			zap.String(logFieldPathConstant, requestContext.Request.URL.Path),
			zap.Int(logFieldStatusConstant, requestContext.Writer.Status()),
			zap.Duration(logFieldDurationConstant, time.Since(startedAt)),
		)
	}
}

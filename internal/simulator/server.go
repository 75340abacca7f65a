// Package simulator implements a local stand-in for the external agent
// management backend: paged task-event history, a live SSE stream, task
// creation, status and control endpoints. It exists so the client is
// exercisable end to end without a production deployment.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Config holds simulator server settings.
type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
	// TickInterval is the delay between generated events.
	TickInterval time.Duration
	// Iterations per simulated workflow run.
	Iterations int
	Logger     *slog.Logger
}

// DefaultConfig returns the default simulator configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8080,
		AllowOrigins: []string{"*"},
		TickInterval: time.Second,
		Iterations:   3,
	}
}

// Server is the simulator HTTP server.
type Server struct {
	config   *Config
	logger   *slog.Logger
	engine   *gin.Engine
	runs     *runRegistry
	metrics  *metrics
	upgrader websocket.Upgrader
}

// NewServer creates a simulator server and registers its routes.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: config.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"*"},
	}))

	s := &Server{
		config:  config,
		logger:  logger,
		engine:  engine,
		runs:    newRunRegistry(),
		metrics: newMetrics(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/v1/agents/:agent")
	v1.POST("/tasks/sync", s.handleCreateTask)
	v1.POST("/messages", s.handleCreateTask)
	v1.GET("/tasks/:task/events", s.handleListEvents)
	v1.GET("/tasks/:task/status", s.handleStatus)
	v1.POST("/tasks/:task/pause", s.handleControl("pause"))
	v1.POST("/tasks/:task/resume", s.handleControl("resume"))
	v1.POST("/tasks/:task/cancel", s.handleControl("cancel"))

	s.engine.GET("/api/sse/agents/:agent/tasks/:task/events/stream", s.handleStream)
	s.engine.GET("/api/ws/agents/:agent/tasks/:task/live", s.handleLive)

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("simulator listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (s *Server) handleCreateTask(c *gin.Context) {
	agentID := c.Param("agent")
	taskID := "task-" + uuid.NewString()

	run := s.runs.create(agentID, taskID, s.config.Iterations)
	go run.generate(s.config.TickInterval, s.metrics)

	s.logger.Info("task created", "agent_id", agentID, "task_id", taskID)
	c.JSON(http.StatusOK, gin.H{
		"task_id":   taskID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListEvents(c *gin.Context) {
	run, ok := s.runs.get(c.Param("agent"), c.Param("task"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "100"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	c.JSON(http.StatusOK, run.page(page, pageSize))
}

func (s *Server) handleStatus(c *gin.Context) {
	run, ok := s.runs.get(c.Param("agent"), c.Param("task"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	status, content, errMsg := run.statusSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"content":   content,
		"error":     errMsg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleControl(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := s.runs.get(c.Param("agent"), c.Param("task"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		if err := run.control(action); err != nil {
			c.JSON(http.StatusOK, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "ok"}})
	}
}

// handleStream subscribes the caller to the run's live events over SSE.
func (s *Server) handleStream(c *gin.Context) {
	run, ok := s.runs.get(c.Param("agent"), c.Param("task"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	sub := run.subscribe()
	defer run.unsubscribe(sub)
	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case rec, open := <-sub:
			if !open {
				return
			}
			event := sse.Event{Event: rec.EventType, Data: rec}
			if err := sse.Encode(c.Writer, event); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// handleLive mirrors the same event feed over a websocket.
func (s *Server) handleLive(c *gin.Context) {
	run, ok := s.runs.get(c.Param("agent"), c.Param("task"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := run.subscribe()
	defer run.unsubscribe(sub)

	for rec := range sub {
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

// Package controller implements the backend simulator: the control API, the
// push-event websocket and a simulated sensor feed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/config"
	"github.com/luifiio/bp4w-maq/internal/metrics"
	"github.com/luifiio/bp4w-maq/internal/model"
	"github.com/luifiio/bp4w-maq/internal/stream"
)

// Server provides the simulated backend.
type Server struct {
	cfg     config.SimulatorConfig
	log     zerolog.Logger
	hub     *Hub
	limiter *rate.Limiter
	router  *gin.Engine

	// mu guards the session state and orders every push frame.
	mu          sync.Mutex
	status      model.SystemStatus
	seq         uint64
	engine      *Engine
	stopStream  context.CancelFunc
	sessionPath string
}

// NewServer constructs a simulator server. A zero seed picks one from the
// clock.
func NewServer(cfg config.SimulatorConfig, logger zerolog.Logger) *Server {
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	burst := int(math.Ceil(cfg.RequestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		hub:     NewHub(logger),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		engine:  NewEngine(seed),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	control := r.Group("/api", s.rateLimit())
	control.GET("/status", s.handleStatus)
	control.POST("/connect", s.handleConnect)
	control.POST("/disconnect", s.handleDisconnect)
	control.POST("/start", s.handleStart)
	control.POST("/stop", s.handleStop)
	control.POST("/logging/start", s.handleLoggingStart)
	control.POST("/logging/stop", s.handleLoggingStop)

	r.GET(stream.DefaultPath, s.handlePush)
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("listen", s.cfg.Listen).Float64("sample_rate_hz", s.cfg.SampleRateHz).Msg("simulator listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the sensor feed and disconnects push clients.
func (s *Server) Close() {
	s.mu.Lock()
	s.haltStreamLocked()
	s.mu.Unlock()
	s.hub.CloseAll()
}

// Status returns the current session state.
func (s *Server) Status() model.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status())
}

func (s *Server) handleConnect(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Connected = true
	s.pushStatusLocked()
	ok(c, "Connected")
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltStreamLocked()
	s.status = model.SystemStatus{}
	s.sessionPath = ""
	s.pushStatusLocked()
	ok(c, "Disconnected")
}

func (s *Server) handleStart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Connected {
		fail(c, http.StatusBadRequest, "Not connected")
		return
	}
	if !s.status.Streaming {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopStream = cancel
		s.status.Streaming = true
		go s.feed(ctx)
	}
	s.pushStatusLocked()
	ok(c, "Streaming started")
}

func (s *Server) handleStop(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltStreamLocked()
	s.pushStatusLocked()
	ok(c, "Streaming stopped")
}

func (s *Server) handleLoggingStart(c *gin.Context) {
	var req api.LoggingStartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	name := strings.TrimSpace(req.SessionName)
	if name == "" {
		name = api.DefaultSessionName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Connected {
		fail(c, http.StatusBadRequest, "Not connected")
		return
	}
	s.status.Logging = true
	if s.cfg.LogDir != "" {
		s.sessionPath = filepath.Join(s.cfg.LogDir, fmt.Sprintf("%s_%s.csv", sessionFileName(name), time.Now().Format("20060102_150405")))
	}
	s.log.Info().Str("session", name).Str("path", s.sessionPath).Msg("logging started")
	s.pushStatusLocked()
	ok(c, "Logging started")
}

func (s *Server) handleLoggingStop(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Logging = false
	s.sessionPath = ""
	s.pushStatusLocked()
	ok(c, "Logging stopped")
}

func (s *Server) handlePush(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	greeting, err := stream.Encode(stream.EventStatus, s.seq, s.status)
	if err == nil {
		err = s.hub.Add(conn, greeting)
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("push greeting failed")
		conn.Close()
		return
	}
	defer s.hub.Remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("push client read ended")
			}
			return
		}
	}
}

// feed emits samples at the configured rate until ctx is cancelled.
func (s *Server) feed(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / s.cfg.SampleRateHz)
	dt := 1 / s.cfg.SampleRateHz
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		sample := s.engine.Step(dt)
		frame, err := stream.Encode(stream.EventSensorData, 0, sample)
		if err == nil {
			s.hub.Broadcast(frame)
		}
		if s.status.Logging && s.sessionPath != "" {
			if err := metrics.AppendCSV(s.sessionPath, []model.SensorSample{sample}); err != nil {
				s.log.Warn().Err(err).Str("path", s.sessionPath).Msg("append session log failed")
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) haltStreamLocked() {
	if s.stopStream != nil {
		s.stopStream()
		s.stopStream = nil
	}
	s.status.Streaming = false
}

func (s *Server) pushStatusLocked() {
	s.status = s.status.Normalize()
	s.seq++
	frame, err := stream.Encode(stream.EventStatus, s.seq, s.status)
	if err != nil {
		s.log.Error().Err(err).Msg("encode status failed")
		return
	}
	s.hub.Broadcast(frame)
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			fail(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func ok(c *gin.Context, message string) {
	c.JSON(http.StatusOK, api.Outcome{Success: true, Message: message})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, api.Outcome{Success: false, Message: message})
}

// sessionFileName keeps letters, digits, dash and underscore.
func sessionFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return api.DefaultSessionName
	}
	return b.String()
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/FairGame-Network/transactor_layer/internal/component"
	"github.com/FairGame-Network/transactor_layer/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Games are joined cross-origin by design; auth happens at the event
	// signature level, not the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the transactor's HTTP and WebSocket surface.
type Server struct {
	deps    Deps
	manager *GameManager
	engine  *gin.Engine
	http    *http.Server
	log     *logrus.Entry
}

// NewServer wires the routes.
func NewServer(deps Deps, manager *GameManager) *Server {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		deps:    deps,
		manager: manager,
		engine:  engine,
		log:     deps.Log.WithField("component", "server"),
	}

	engine.GET("/health", s.handleHealth)
	engine.POST("/attach", s.handleAttach)
	engine.POST("/event", s.handleEvent)
	engine.POST("/message", s.handleMessage)
	engine.POST("/leave", s.handleLeave)
	engine.GET("/ws", s.handleSubscribe)

	return s
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.deps.Config.Port),
		Handler: s.engine,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.Infof("Listening on :%d", s.deps.Config.Port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AttachRequest loads a game on this server.
type AttachRequest struct {
	GameAddr string `json:"gameAddr" binding:"required"`
}

func (s *Server) handleAttach(c *gin.Context) {
	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.manager.LoadGame(req.GameAddr); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvent(c *gin.Context) {
	var req component.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.manager.Game(req.GameAddr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not loaded"})
		return
	}
	game.SendEvent(req.Event, s.deps.Clock.NowMillis())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MessageRequest relays a chat line.
type MessageRequest struct {
	GameAddr string `json:"gameAddr" binding:"required"`
	Sender   string `json:"sender" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

func (s *Server) handleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.manager.Game(req.GameAddr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not loaded"})
		return
	}
	game.SendMessage(core.Message{Sender: req.Sender, Content: req.Content})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LeaveRequest withdraws a player.
type LeaveRequest struct {
	GameAddr   string `json:"gameAddr" binding:"required"`
	PlayerAddr string `json:"playerAddr" binding:"required"`
}

func (s *Server) handleLeave(c *gin.Context) {
	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.manager.Game(req.GameAddr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not loaded"})
		return
	}
	game.PlayerLeaving(req.PlayerAddr)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSubscribe upgrades to a websocket and streams broadcast frames: the
// backlog since the requested settle version, then the live feed.
func (s *Server) handleSubscribe(c *gin.Context) {
	gameAddr := c.Query("game")
	if gameAddr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game is required"})
		return
	}
	settleVersion, err := strconv.ParseUint(c.DefaultQuery("settle_version", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settle_version"})
		return
	}
	game, ok := s.manager.Game(gameAddr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not loaded"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("Websocket upgrade failed: %v", err)
		return
	}

	backlog, stream, cancel := game.Broadcaster().Subscribe(settleVersion)
	go s.serveSubscription(conn, backlog, stream, cancel)
}

func (s *Server) serveSubscription(conn *websocket.Conn, backlog []*core.BroadcastFrame, stream <-chan *core.BroadcastFrame, cancel func()) {
	defer cancel()
	defer conn.Close()

	// Drain the read side to notice disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for _, f := range backlog {
		if err := conn.WriteJSON(f); err != nil {
			return
		}
	}
	for f := range stream {
		if err := conn.WriteJSON(f); err != nil {
			return
		}
	}
	// The broadcaster closed the stream: either shutdown or this
	// subscriber fell too far behind.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"),
		time.Now().Add(time.Second))
}

// Package httpapi exposes the Player, Compare Pipeline, and persisted
// settings over HTTP: GET /timeline, POST /player/seek, POST
// /player/playback, GET /player/observe (SSE), POST /compare, mirroring
// the route/handler shape of the teacher's
// internal/modules/playbackmodule (routes.go's grouped registration,
// api_handlers.go's ShouldBindJSON + gin.H{"error": ...} convention)
// and its SSE streaming from internal/server/handlers/event_stream.go.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/internal/compare"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/persistence"
	"github.com/mantonx/tlplay/internal/player"
	"github.com/mantonx/tlplay/pkg/otio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// Server wires a Player, an optional Compare Pipeline, the resolved
// Timeline, and the persistence Store to a gin.Engine.
type Server struct {
	engine   *gin.Engine
	player   *player.Player
	timeline *otio.Timeline
	compare  *compare.Pipeline
	store    *persistence.Store
	log      hclog.Logger
}

// New builds the gin engine and registers every route. store may be nil
// (recent-files/resume persistence becomes a no-op); cmp may be nil (no
// B input has been set, every /compare call reports HasB=false).
func New(p *player.Player, timeline *otio.Timeline, cmp *compare.Pipeline, store *persistence.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		player:   p,
		timeline: timeline,
		compare:  cmp,
		store:    store,
		log:      logger.Named("httpapi"),
	}
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin.Engine, e.g. for http.Server.Handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	group := s.engine.Group("/")
	{
		group.GET("/timeline", s.handleGetTimeline)
		group.POST("/player/seek", s.handleSeek)
		group.POST("/player/playback", s.handlePlayback)
		group.GET("/player/observe", s.handleObserve)
		group.POST("/compare", s.handleCompare)
		group.GET("/settings/recent-files", s.handleRecentFiles)
	}
}

func (s *Server) handleGetTimeline(c *gin.Context) {
	c.JSON(http.StatusOK, s.timeline)
}

// SeekRequest is the body of POST /player/seek.
type SeekRequest struct {
	Seconds float64 `json:"seconds" binding:"required"`
}

func (s *Server) handleSeek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := rationaltime.FromSeconds(req.Seconds, s.player.CurrentTime.Value().Rate)
	s.player.Seek(t)
	c.JSON(http.StatusOK, gin.H{"current_time": s.player.CurrentTime.Value()})
}

// PlaybackRequest is the body of POST /player/playback.
type PlaybackRequest struct {
	State string `json:"state" binding:"required"` // "stopped" | "forward" | "reverse"
	Loop  string `json:"loop,omitempty"`            // "once" | "loop" | "pingpong"
}

func (s *Server) handlePlayback(c *gin.Context) {
	var req PlaybackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, ok := parsePlaybackState(req.State)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown playback state: " + req.State})
		return
	}
	s.player.SetPlayback(state)

	if req.Loop != "" {
		loop, ok := parseLoopMode(req.Loop)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown loop mode: " + req.Loop})
			return
		}
		s.player.SetLoop(loop)
	}

	c.JSON(http.StatusOK, gin.H{
		"playback": s.player.Playback.Value(),
		"loop":     s.player.Loop.Value(),
	})
}

func parsePlaybackState(s string) (player.PlaybackState, bool) {
	switch s {
	case "stopped":
		return player.Stopped, true
	case "forward":
		return player.Forward, true
	case "reverse":
		return player.Reverse, true
	default:
		return player.Stopped, false
	}
}

func parseLoopMode(s string) (player.LoopMode, bool) {
	switch s {
	case "once":
		return player.Once, true
	case "loop":
		return player.Loop, true
	case "pingpong":
		return player.PingPong, true
	default:
		return player.Once, false
	}
}

// observeEvent is one SSE payload: the field that changed plus its
// current value, mirroring the teacher's {"type", "data", "time"} shape.
type observeEvent struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
	Time  time.Time   `json:"time"`
}

// handleObserve streams CurrentTime/Playback/CacheInfo changes as
// server-sent events until the client disconnects, heartbeating every
// 30s the way the teacher's EventStream does.
func (s *Server) handleObserve(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	timeCh, unsubTime := s.player.CurrentTime.Subscribe()
	playbackCh, unsubPlayback := s.player.Playback.Subscribe()
	cacheCh, unsubCache := s.player.CacheInfo.Subscribe()
	defer unsubTime()
	defer unsubPlayback()
	defer unsubCache()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
	}()

	c.SSEvent("", observeEvent{Field: "connected", Time: time.Now()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case v, ok := <-timeCh:
			if !ok {
				return false
			}
			c.SSEvent("", observeEvent{Field: "current_time", Value: v, Time: time.Now()})
			return true
		case v, ok := <-playbackCh:
			if !ok {
				return false
			}
			c.SSEvent("", observeEvent{Field: "playback", Value: v, Time: time.Now()})
			return true
		case v, ok := <-cacheCh:
			if !ok {
				return false
			}
			c.SSEvent("", observeEvent{Field: "cache_info", Value: v, Time: time.Now()})
			return true
		case <-time.After(30 * time.Second):
			c.SSEvent("", observeEvent{Field: "heartbeat", Time: time.Now()})
			return true
		}
	})
}

// CompareRequest is the body of POST /compare: the Compare Pipeline's
// Options (mode, wipe/overlay params, time mode), applied against the
// Player's most recent VideoData.
type CompareRequest struct {
	Options compare.Options `json:"options"`
}

func (s *Server) handleCompare(c *gin.Context) {
	if s.compare == nil || !s.compare.HasB() {
		c.JSON(http.StatusOK, gin.H{"has_b": false})
		return
	}

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	aResult := s.player.VideoData.Value()
	result, err := s.compare.Advance(c.Request.Context(), s.player.CurrentTime.Value(), aResult, req.Options)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecentFiles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"recent_files": []persistence.RecentFile{}})
		return
	}
	files, err := s.store.RecentFiles(0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recent_files": files})
}

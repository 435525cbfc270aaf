package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/lvstream/internal/liveview"
	"github.com/danmuck/lvstream/internal/node"
	"github.com/danmuck/lvstream/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

var trustedProxies = []string{"127.0.0.1", "::1"}

type Relay struct {
	ID       string
	Addr     string
	Appeared time.Time

	router *gin.Engine
	hub    *Hub
	state  func() liveview.ConnectionState

	mu       sync.RWMutex
	image    *liveview.ImagePacket
	imageAt  time.Time
	images   uint64
	focus    *liveview.FocusView
	playback *liveview.PlaybackView
	closed   uint64
}

var (
	_ node.Node        = (*Relay)(nil)
	_ liveview.Handler = (*Relay)(nil)
)

// Appear builds a relay node. state reports the upstream connection state
// for /ready and /state; nil means always closed.
func Appear(id, addr string, corsOrigins []string, state func() liveview.ConnectionState) *Relay {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		log.Warn().Err(err).Str("relay", id).Msg("trusted proxies rejected")
	}

	if state == nil {
		state = func() liveview.ConnectionState { return liveview.Closed }
	}
	return &Relay{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		router:   r,
		hub:      NewHub(),
		state:    state,
	}
}

func (s *Relay) NodeID() string {
	return s.ID
}

func (s *Relay) Kind() string {
	return "relay"
}

func (s *Relay) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Relay) Hub() *Hub {
	return s.hub
}

// Serve blocks until ctx is done or the listener fails. Viewers are
// disconnected before the HTTP server drains.
func (s *Relay) Serve(ctx context.Context) error {
	s.RegisterRoutes()
	srv := &http.Server{Addr: s.Addr, Handler: s.router}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info().Str("relay", s.ID).Str("addr", s.Addr).Msg("relay listening")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Relay) OnImage(p liveview.ImagePacket) {
	s.mu.Lock()
	s.image = &p
	s.imageAt = time.Now()
	s.images++
	s.mu.Unlock()
	s.hub.BroadcastBinary(p.ImageData)
}

func (s *Relay) OnFocusRegions(p liveview.FocusRegionSet) {
	view := liveview.NewFocusView(p)
	s.mu.Lock()
	s.focus = &view
	s.mu.Unlock()
	s.broadcastJSON("focus", view)
}

func (s *Relay) OnPlaybackStatus(p liveview.PlaybackStatusPacket) {
	view := liveview.NewPlaybackView(p)
	s.mu.Lock()
	s.playback = &view
	s.mu.Unlock()
	s.broadcastJSON("playback", view)
}

func (s *Relay) OnClosed() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.broadcastJSON("closed", nil)
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func (s *Relay) broadcastJSON(kind string, data any) {
	payload, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		log.Error().Err(err).Str("relay", s.ID).Str("type", kind).Msg("encode viewer message")
		return
	}
	s.hub.BroadcastText(payload)
}

// Snapshot is the relay state served by /state.
type Snapshot struct {
	Connection  string              `json:"connection"`
	Images      uint64              `json:"images"`
	Closed      uint64              `json:"closed"`
	Viewers     int                 `json:"viewers"`
	LastImage   *liveview.ImageView `json:"last_image,omitempty"`
	LastImageAt *time.Time          `json:"last_image_at,omitempty"`
}

func (s *Relay) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Connection: s.state().String(),
		Images:     s.images,
		Closed:     s.closed,
		Viewers:    s.hub.Len(),
	}
	if s.image != nil {
		view := liveview.NewImageView(*s.image)
		at := s.imageAt
		out.LastImage = &view
		out.LastImageAt = &at
	}
	return out
}

func (s *Relay) latestImage() (liveview.ImagePacket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.image == nil {
		return liveview.ImagePacket{}, false
	}
	return *s.image, true
}

func (s *Relay) latestFocus() (liveview.FocusView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.focus == nil {
		return liveview.FocusView{}, false
	}
	return *s.focus, true
}

func (s *Relay) latestPlayback() (liveview.PlaybackView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.playback == nil {
		return liveview.PlaybackView{}, false
	}
	return *s.playback, true
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
